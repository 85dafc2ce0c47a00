package models

import (
	"math"
	"time"
)

// Snapshot is the full application state
type Snapshot struct {
	Children        []Child            `json:"children"`
	RewardItems     []RewardPunishItem `json:"rewardItems"`
	PunishmentItems []RewardPunishItem `json:"punishmentItems"`
	Records         []PointRecord      `json:"records"`
}

// Normalize replaces nil collections with empty ones so they encode as [].
func (s *Snapshot) Normalize() {
	if s.Children == nil {
		s.Children = []Child{}
	}
	if s.RewardItems == nil {
		s.RewardItems = []RewardPunishItem{}
	}
	if s.PunishmentItems == nil {
		s.PunishmentItems = []RewardPunishItem{}
	}
	if s.Records == nil {
		s.Records = []PointRecord{}
	}
}

// ExportDocument is the export/import file format
type ExportDocument struct {
	Snapshot
	ExportTime  time.Time `json:"exportTime"`
	StorageType string    `json:"storageType,omitempty"`
}

// Stats holds dashboard totals
type Stats struct {
	TotalChildren   int `json:"totalChildren"`
	TotalPoints     int `json:"totalPoints"`
	AveragePoints   int `json:"averagePoints"`
	TotalRecords    int `json:"totalRecords"`
	RewardItems     int `json:"rewardItems"`
	PunishmentItems int `json:"punishmentItems"`
}

// ComputeStats derives dashboard totals from a snapshot. The average rounds
// halves up (-2.5 becomes -2) and is 0 when there are no children.
func ComputeStats(s Snapshot) Stats {
	stats := Stats{
		TotalChildren:   len(s.Children),
		TotalRecords:    len(s.Records),
		RewardItems:     len(s.RewardItems),
		PunishmentItems: len(s.PunishmentItems),
	}
	for _, c := range s.Children {
		stats.TotalPoints += c.Points
	}
	if stats.TotalChildren > 0 {
		stats.AveragePoints = int(math.Floor(float64(stats.TotalPoints)/float64(stats.TotalChildren) + 0.5))
	}
	return stats
}
