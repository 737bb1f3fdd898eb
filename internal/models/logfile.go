package models

import (
	"github.com/google/uuid"
)

// FileStatus represents the ingestion state of an uploaded log file
type FileStatus string

const (
	FileStatusQueued  FileStatus = "queued"
	FileStatusParsing FileStatus = "parsing"
	FileStatusParsed  FileStatus = "parsed"
	FileStatusFailed  FileStatus = "failed"
)

// LogFile represents one uploaded diagnostic log file. The raw upload
// bytes are retained so a failed or stale parse can be rerun end-to-end.
type LogFile struct {
	BaseModel
	ProjectID    uuid.UUID  `json:"projectId" db:"project_id"`
	Filename     string     `json:"filename" db:"filename"`
	Size         int64      `json:"size" db:"size"`
	Status       FileStatus `json:"status" db:"status"`
	EventCount   int        `json:"eventCount" db:"event_count"`
	ErrorCount   int        `json:"errorCount" db:"error_count"`
	InvalidLines int        `json:"invalidLines" db:"invalid_lines"`
	Error        string     `json:"error,omitempty" db:"error"`
	Content      []byte     `json:"-" db:"content"`
}
