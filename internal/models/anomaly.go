package models

import (
	"github.com/google/uuid"
)

// AnomalyPattern is one finding produced by a heuristic scanner
type AnomalyPattern struct {
	PatternType string          `json:"patternType"`
	Description string          `json:"description"`
	ProjectID   uuid.UUID       `json:"projectId"`
	DeviceMac   string          `json:"deviceMac,omitempty"`
	StartMs     int64           `json:"startMs"`
	EndMs       int64           `json:"endMs"`
	Evidence    AnomalyEvidence `json:"evidence"`
}

// AnomalyEvidence backs a pattern with the concrete events behind it
type AnomalyEvidence struct {
	EventIDs []uuid.UUID    `json:"eventIds,omitempty"`
	Count    int            `json:"count"`
	ByName   map[string]int `json:"byName,omitempty"`
}

// AnomalyReport aggregates the output of every scanner over one window
type AnomalyReport struct {
	ProjectID uuid.UUID        `json:"projectId"`
	StartMs   int64            `json:"startMs"`
	EndMs     int64            `json:"endMs"`
	DeviceMac string           `json:"deviceMac,omitempty"`
	Patterns  []AnomalyPattern `json:"patterns"`
	Summary   map[string]int   `json:"summary"`
}
