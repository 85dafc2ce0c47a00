package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownItemType is returned when a type outside reward/punishment is supplied
var ErrUnknownItemType = errors.New("unknown item type")

// ItemType distinguishes rewards from punishments
type ItemType string

const (
	ItemTypeReward     ItemType = "reward"
	ItemTypePunishment ItemType = "punishment"
)

// ParseItemType converts a raw string into an ItemType.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case ItemTypeReward, ItemTypePunishment:
		return ItemType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownItemType, s)
}

// Valid reports whether t is one of the known types
func (t ItemType) Valid() bool {
	return t == ItemTypeReward || t == ItemTypePunishment
}

// Normalize returns points with the sign implied by t: positive for rewards,
// negative for punishments.
func (t ItemType) Normalize(points int) int {
	if points < 0 {
		points = -points
	}
	if t == ItemTypePunishment {
		return -points
	}
	return points
}

// UnmarshalJSON rejects unknown item types.
func (t *ItemType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("item type must be a string: %w", err)
	}
	parsed, err := ParseItemType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RewardPunishItem is a catalog entry. Items are created and deleted, never updated.
type RewardPunishItem struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Icon   string   `json:"icon,omitempty"`
	Points int      `json:"points"`
	Type   ItemType `json:"type"`
}

// ItemInput holds the fields a caller supplies when adding a catalog item
type ItemInput struct {
	Name   string `json:"name"`
	Icon   string `json:"icon,omitempty"`
	Points int    `json:"points"`
}
