package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpoints/internal/models"
	"habitpoints/pkg/logger"
)

func seedStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	mia, err := s.AddChild(ctx, models.ChildInput{Name: "Mia", Avatar: "🐱"})
	require.NoError(t, err)
	leo, err := s.AddChild(ctx, models.ChildInput{Name: "Leo"})
	require.NoError(t, err)
	reward, err := s.AddRewardItem(ctx, models.ItemInput{Name: "Reading", Points: 3})
	require.NoError(t, err)
	punish, err := s.AddPunishmentItem(ctx, models.ItemInput{Name: "Shouting", Points: 2})
	require.NoError(t, err)
	for _, in := range []models.RecordInput{
		{ChildID: mia.ID, ItemID: reward.ID, ItemName: reward.Name, Points: reward.Points, Type: reward.Type},
		{ChildID: leo.ID, ItemID: punish.ID, ItemName: punish.Name, Points: punish.Points, Type: punish.Type},
		{ChildID: mia.ID, ItemID: punish.ID, ItemName: punish.Name, Points: punish.Points, Type: punish.Type},
	} {
		_, err := s.AddRecord(ctx, in)
		require.NoError(t, err)
	}
}

func withoutExportTime(t *testing.T, text string) map[string]json.RawMessage {
	t.Helper()
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	delete(doc, "exportTime")
	return doc
}

func TestExportFormat(t *testing.T) {
	s, _ := newTestStore(t)
	seedStore(t, s)

	text, err := s.ExportData()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "{\n  \"children\": ["), "indented with two spaces")
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	for _, key := range []string{"children", "rewardItems", "punishmentItems", "records", "exportTime"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "storageType")
	assert.Equal(t, "2024-03-01T09:30:00Z", doc["exportTime"])
}

func TestExportEmptyStoreHasArrays(t *testing.T) {
	s, _ := newTestStore(t)
	text, err := s.ExportData()
	require.NoError(t, err)

	doc := withoutExportTime(t, text)
	for _, key := range []string{"children", "rewardItems", "punishmentItems", "records"} {
		assert.JSONEq(t, `[]`, string(doc[key]), key)
	}
}

func TestExportIdempotentExceptTime(t *testing.T) {
	now := fixedNow
	s, _ := newTestStore(t, WithClock(func() time.Time { return now }))
	seedStore(t, s)

	first, err := s.ExportData()
	require.NoError(t, err)
	now = now.Add(time.Hour)
	second, err := s.ExportData()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, withoutExportTime(t, first), withoutExportTime(t, second))
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestStore(t)
	seedStore(t, src)
	text, err := src.ExportData()
	require.NoError(t, err)

	dst, repo := newTestStore(t)
	require.NoError(t, dst.ImportData(ctx, text))

	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	assert.Equal(t, src.Records()[0].ID, dst.Records()[0].ID, "record order preserved")

	// The import was persisted
	reloaded := NewStore(repo, logger.Discard())
	reloaded.Load(ctx)
	assert.Equal(t, src.Snapshot(), reloaded.Snapshot())
}

func TestImportRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "missing children", text: `{"foo": 1}`},
		{name: "children not array", text: `{"children": {"id": "a"}}`},
		{name: "children null", text: `{"children": null}`},
		{name: "invalid json", text: `{"children": [`},
		{name: "not an object", text: `[1,2,3]`},
		{name: "unknown item type", text: `{"children": [], "rewardItems": [{"id":"x","name":"n","points":1,"type":"gift"}]}`},
		{name: "zero point item", text: `{"children": [], "rewardItems": [{"id":"x","name":"n","points":0}]}`},
		{name: "item points out of range", text: `{"children": [], "punishmentItems": [{"id":"x","name":"n","points":-9223372036854775808}]}`},
		{name: "bad record date", text: `{"children": [], "records": [{"id":"r","childId":"c","points":1,"type":"reward","date":"yesterday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := newTestStore(t)
			seedStore(t, s)
			before := s.Snapshot()

			err := s.ImportData(ctx, tt.text)
			assert.ErrorIs(t, err, ErrInvalidImport)
			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestImportNormalizesItemsAndRecords(t *testing.T) {
	tests := []struct {
		name            string
		text            string
		wantRewards     []models.RewardPunishItem
		wantPunishments []models.RewardPunishItem
		wantRecordTypes []models.ItemType
	}{
		{
			name:        "untyped reward takes collection type and positive sign",
			text:        `{"children": [], "rewardItems": [{"id":"r1","name":"Reading","points":-5}]}`,
			wantRewards: []models.RewardPunishItem{{ID: "r1", Name: "Reading", Points: 5, Type: models.ItemTypeReward}},
		},
		{
			name:            "untyped punishment takes negative sign",
			text:            `{"children": [], "punishmentItems": [{"id":"p1","name":"Shouting","points":3}]}`,
			wantPunishments: []models.RewardPunishItem{{ID: "p1", Name: "Shouting", Points: -3, Type: models.ItemTypePunishment}},
		},
		{
			name:            "punishment listed under rewards moves to punishments",
			text:            `{"children": [], "rewardItems": [{"id":"r1","name":"Reading","points":2},{"id":"p1","name":"Hitting","points":3,"type":"punishment"}]}`,
			wantRewards:     []models.RewardPunishItem{{ID: "r1", Name: "Reading", Points: 2, Type: models.ItemTypeReward}},
			wantPunishments: []models.RewardPunishItem{{ID: "p1", Name: "Hitting", Points: -3, Type: models.ItemTypePunishment}},
		},
		{
			name:        "reward listed under punishments moves to rewards",
			text:        `{"children": [], "punishmentItems": [{"id":"r1","name":"Chores","points":-4,"type":"reward"}]}`,
			wantRewards: []models.RewardPunishItem{{ID: "r1", Name: "Chores", Points: 4, Type: models.ItemTypeReward}},
		},
		{
			name: "untyped records take type from sign",
			text: `{"children": [], "records": [` +
				`{"id":"a","childId":"c","itemName":"x","points":4,"date":"2024-03-01T09:30:00Z"},` +
				`{"id":"b","childId":"c","itemName":"y","points":-2,"date":"2024-03-01T09:30:00Z"},` +
				`{"id":"c","childId":"c","itemName":"z","points":1,"type":"punishment","date":"2024-03-01T09:30:00Z"}]}`,
			wantRecordTypes: []models.ItemType{models.ItemTypeReward, models.ItemTypePunishment, models.ItemTypePunishment},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			require.NoError(t, s.ImportData(context.Background(), tt.text))

			if tt.wantRewards == nil {
				tt.wantRewards = []models.RewardPunishItem{}
			}
			if tt.wantPunishments == nil {
				tt.wantPunishments = []models.RewardPunishItem{}
			}
			assert.Equal(t, tt.wantRewards, s.RewardItems())
			assert.Equal(t, tt.wantPunishments, s.PunishmentItems())

			var types []models.ItemType
			for _, r := range s.Records() {
				types = append(types, r.Type)
			}
			assert.Equal(t, tt.wantRecordTypes, types)
		})
	}
}

func TestImportDefaultsOptionalCollections(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedStore(t, s)

	require.NoError(t, s.ImportData(ctx, `{"children": [{"id":"c9","name":"Zoe","points":4}], "records": null}`))

	assert.Equal(t, []models.Child{{ID: "c9", Name: "Zoe", Points: 4}}, s.Children())
	assert.Empty(t, s.RewardItems())
	assert.Empty(t, s.PunishmentItems())
	assert.Empty(t, s.Records())
}

func TestImportAcceptsOriginalDateFormat(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	text := `{"children":[{"id":"1700000000000","name":"Mia","points":5}],` +
		`"records":[{"id":"1700000000001","childId":"1700000000000","itemId":"9","itemName":"Reading","points":5,"type":"reward","date":"2024-03-01T09:30:00.000Z"}],` +
		`"exportTime":"2024-03-02T10:00:00.000Z"}`
	require.NoError(t, s.ImportData(ctx, text))

	records := s.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Date.Equal(fixedNow))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "habits-data-2024-03-01.json", ExportFilename(fixedNow))
}
