package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"habitpoints/internal/models"
)

// Table names on the hosted backend
const (
	TableChildren = "children"
	TableItems    = "reward_punish_items"
	TableRecords  = "point_records"
)

// Timestamp accepts the timestamp shapes the backend emits, with or without
// a zone offset. Values without an offset are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ChildRow is a row of the children table
type ChildRow struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Avatar    *string    `json:"avatar"`
	Points    *int       `json:"points"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

// ItemRow is a row of the reward_punish_items table
type ItemRow struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Points    *int       `json:"points"`
	Type      string     `json:"type"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

// RecordRow is a row of the point_records table. The table has no item id column.
type RecordRow struct {
	ID        string     `json:"id"`
	ChildID   string     `json:"child_id"`
	ItemName  string     `json:"item_name"`
	Points    *int       `json:"points"`
	Type      string     `json:"type"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// ToChild reshapes a children row. A null avatar or points becomes "" or 0.
func ToChild(row ChildRow) models.Child {
	child := models.Child{ID: row.ID, Name: row.Name, Points: intOrZero(row.Points)}
	if row.Avatar != nil {
		child.Avatar = *row.Avatar
	}
	return child
}

// ToItem reshapes a catalog row, normalizing the sign of its points.
func ToItem(row ItemRow) (models.RewardPunishItem, error) {
	itemType, err := models.ParseItemType(row.Type)
	if err != nil {
		return models.RewardPunishItem{}, fmt.Errorf("item %s: %w", row.ID, err)
	}
	return models.RewardPunishItem{
		ID:     row.ID,
		Name:   row.Name,
		Points: itemType.Normalize(intOrZero(row.Points)),
		Type:   itemType,
	}, nil
}

// ToRecord reshapes a point record row. created_at becomes the record date.
func ToRecord(row RecordRow) (models.PointRecord, error) {
	itemType, err := models.ParseItemType(row.Type)
	if err != nil {
		return models.PointRecord{}, fmt.Errorf("record %s: %w", row.ID, err)
	}
	rec := models.PointRecord{
		ID:       row.ID,
		ChildID:  row.ChildID,
		ItemName: row.ItemName,
		Points:   intOrZero(row.Points),
		Type:     itemType,
	}
	if row.CreatedAt != nil {
		rec.Date = row.CreatedAt.Time
	}
	return rec, nil
}

// FromChild builds the row written for a child
func FromChild(c models.Child) ChildRow {
	points := c.Points
	row := ChildRow{ID: c.ID, Name: c.Name, Points: &points}
	if c.Avatar != "" {
		avatar := c.Avatar
		row.Avatar = &avatar
	}
	return row
}

// FromItem builds the row written for a catalog item
func FromItem(item models.RewardPunishItem) ItemRow {
	points := item.Points
	return ItemRow{ID: item.ID, Name: item.Name, Points: &points, Type: string(item.Type)}
}

// FromRecord builds the row written for a record. The record date is sent as
// created_at so ordering survives a round trip.
func FromRecord(rec models.PointRecord) RecordRow {
	points := rec.Points
	row := RecordRow{
		ID:       rec.ID,
		ChildID:  rec.ChildID,
		ItemName: rec.ItemName,
		Points:   &points,
		Type:     string(rec.Type),
	}
	if !rec.Date.IsZero() {
		row.CreatedAt = &Timestamp{Time: rec.Date}
	}
	return row
}
