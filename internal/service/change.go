package service

import "habitpoints/internal/models"

// ChangeKind names a mutation
type ChangeKind string

const (
	ChangeChildAdded    ChangeKind = "child_added"
	ChangeChildUpdated  ChangeKind = "child_updated"
	ChangeChildDeleted  ChangeKind = "child_deleted"
	ChangeItemAdded     ChangeKind = "item_added"
	ChangeItemDeleted   ChangeKind = "item_deleted"
	ChangeRecordAdded   ChangeKind = "record_added"
	ChangeRecordDeleted ChangeKind = "record_deleted"
	ChangeCleared       ChangeKind = "cleared"
	ChangeReplaced      ChangeKind = "replaced"
)

// Change describes one applied mutation. Only the field matching Kind is set;
// ID holds the subject id for deletions.
type Change struct {
	Kind   ChangeKind
	Child  models.Child
	Item   models.RewardPunishItem
	Record models.PointRecord
	ID     string
}
