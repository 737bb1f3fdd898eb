package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisSnapshot stores the derived artifacts for one log file, tagged
// with the template version of the engine that produced them. A snapshot
// whose version is behind the engine is stale and must be recomputed
// before being served.
type AnalysisSnapshot struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	LogFileID       uuid.UUID         `json:"logFileId" db:"log_file_id"`
	TemplateVersion int               `json:"templateVersion" db:"template_version"`
	Artifacts       SnapshotArtifacts `json:"artifacts" db:"artifacts"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}

// SnapshotArtifacts holds the named derived artifacts of one snapshot
type SnapshotArtifacts struct {
	MainFlow      *MainFlowAnalysis `json:"mainFlow,omitempty"`
	EventCoverage *EventCoverage    `json:"eventCoverage,omitempty"`
	Quality       *QualityReport    `json:"quality,omitempty"`
}

// Value implements driver.Valuer interface
func (a SnapshotArtifacts) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface
func (a *SnapshotArtifacts) Scan(value interface{}) error {
	if value == nil {
		*a = SnapshotArtifacts{}
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, a)
	case string:
		return json.Unmarshal([]byte(data), a)
	default:
		return json.Unmarshal([]byte(data.(string)), a)
	}
}

// MainFlowAnalysis summarizes every reconstructed session in the file
type MainFlowAnalysis struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is the per-session slice of the main flow artifact
type SessionSummary struct {
	LinkCode        string           `json:"linkCode"`
	DeviceMac       string           `json:"deviceMac,omitempty"`
	Status          SessionStatus    `json:"status"`
	Phase           SessionPhase     `json:"phase"`
	DurationMs      *int64           `json:"durationMs,omitempty"`
	EventCount      int              `json:"eventCount"`
	ErrorCount      int              `json:"errorCount"`
	MilestoneDeltas map[string]int64 `json:"milestoneDeltas,omitempty"`
}

// EventCoverage reports which event names the file exercised
type EventCoverage struct {
	TotalEvents   int            `json:"totalEvents"`
	DistinctNames int            `json:"distinctNames"`
	ByName        map[string]int `json:"byName"`
}

// QualityReport reports the health of the parsed stream itself
type QualityReport struct {
	ErrorEvents  int            `json:"errorEvents"`
	ErrorRate    float64        `json:"errorRate"`
	InvalidLines int            `json:"invalidLines"`
	ByLevel      map[string]int `json:"byLevel"`
	TimeRangeMs  [2]int64       `json:"timeRangeMs"`
}
