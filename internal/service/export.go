package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"habitpoints/internal/models"
	"habitpoints/internal/validation"
)

// ExportFilename returns the download name for an export taken at t
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("habits-data-%s.json", t.Format("2006-01-02"))
}

// ExportData renders the whole state as indented JSON. It does not change state.
func (s *Store) ExportData() (string, error) {
	return s.exportWithStorageType("")
}

func (s *Store) exportWithStorageType(storageType string) (string, error) {
	s.mu.Lock()
	doc := models.ExportDocument{
		Snapshot:    s.snapshotLocked(),
		ExportTime:  s.now().UTC().Truncate(time.Millisecond),
		StorageType: storageType,
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(data), nil
}

// ImportData replaces all four collections with the contents of text. The
// children field must be present and an array; other collections default to
// empty. On any error the state is left untouched.
func (s *Store) ImportData(ctx context.Context, text string) error {
	start := time.Now()
	snap, err := parseImport(text)
	if err != nil {
		s.metrics.Observe(ctx, "import", false, time.Since(start))
		s.logger.WithError(err).Warn("Rejected import")
		return err
	}

	s.Replace(ctx, snap)
	s.metrics.Observe(ctx, "import", true, time.Since(start))
	return nil
}

func parseImport(text string) (models.Snapshot, error) {
	var snap models.Snapshot

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	children, ok := fields["children"]
	if !ok || !isJSONArray(children) {
		return snap, fmt.Errorf("%w: children must be an array", ErrInvalidImport)
	}
	if err := json.Unmarshal(children, &snap.Children); err != nil {
		return snap, fmt.Errorf("%w: children: %v", ErrInvalidImport, err)
	}

	optional := []struct {
		name string
		dst  any
	}{
		{"rewardItems", &snap.RewardItems},
		{"punishmentItems", &snap.PunishmentItems},
		{"records", &snap.Records},
	}
	for _, f := range optional {
		raw, ok := fields[f.name]
		if !ok || isJSONNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return snap, fmt.Errorf("%w: %s: %v", ErrInvalidImport, f.name, err)
		}
	}

	if err := normalizeImportedItems(&snap); err != nil {
		return snap, err
	}
	for i := range snap.Records {
		if snap.Records[i].Type == "" {
			snap.Records[i].Type = models.ItemTypeReward
			if snap.Records[i].Points < 0 {
				snap.Records[i].Type = models.ItemTypePunishment
			}
		}
	}

	snap.Normalize()
	return snap, nil
}

// normalizeImportedItems gives untyped items the type of the collection they
// were listed under, moves typed items into the collection of their type and
// applies the sign of that type to their points.
func normalizeImportedItems(snap *models.Snapshot) error {
	var rewards, punishments []models.RewardPunishItem
	lists := []struct {
		items    []models.RewardPunishItem
		fallback models.ItemType
	}{
		{snap.RewardItems, models.ItemTypeReward},
		{snap.PunishmentItems, models.ItemTypePunishment},
	}
	for _, list := range lists {
		for _, item := range list.items {
			if item.Type == "" {
				item.Type = list.fallback
			}
			if err := validation.ValidatePoints(item.Points); err != nil {
				return fmt.Errorf("%w: item %s: %v", ErrInvalidImport, item.ID, err)
			}
			item.Points = item.Type.Normalize(item.Points)
			if item.Type == models.ItemTypeReward {
				rewards = append(rewards, item)
			} else {
				punishments = append(punishments, item)
			}
		}
	}
	snap.RewardItems = rewards
	snap.PunishmentItems = punishments
	return nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
