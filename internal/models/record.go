package models

import "time"

// PointRecord is one application of an item to a child. ItemName, Points and
// Type are copied from the item when the record is created.
type PointRecord struct {
	ID       string    `json:"id"`
	ChildID  string    `json:"childId"`
	ItemID   string    `json:"itemId"`
	ItemName string    `json:"itemName"`
	Points   int       `json:"points"`
	Type     ItemType  `json:"type"`
	Date     time.Time `json:"date"`
}

// RecordInput holds the fields a caller supplies when adding a record
type RecordInput struct {
	ChildID  string   `json:"childId"`
	ItemID   string   `json:"itemId"`
	ItemName string   `json:"itemName"`
	Points   int      `json:"points"`
	Type     ItemType `json:"type"`
}
