package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels carried in the outer envelope `f` field
const (
	LevelDebug = 1
	LevelInfo  = 2
	LevelWarn  = 3
	LevelError = 4
)

// ErrorLevel is the lowest severity counted as an error
const ErrorLevel = LevelWarn

// EventParserError is the synthetic marker event appended when a file
// contained lines that had to be dropped during parsing.
const EventParserError = "PARSER_ERROR"

// LogEvent is the immutable record of one decoded log line. It is created
// once at parse time and only ever deleted by bulk file deletion.
type LogEvent struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	LogFileID   uuid.UUID      `json:"logFileId" db:"log_file_id"`
	ProjectID   uuid.UUID      `json:"projectId" db:"project_id"`
	TimestampMs int64          `json:"timestampMs" db:"timestamp_ms"`
	Level       int            `json:"level" db:"level"`
	EventName   string         `json:"eventName" db:"event_name"`
	Payload     JSONValue      `json:"payload" db:"payload"`
	Tracking    TrackingFields `json:"trackingFields"`
	RawLine     string         `json:"rawLine,omitempty" db:"raw_line"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
}

// IsError reports whether this event counts towards the file error total
func (e *LogEvent) IsError() bool {
	return e.Level >= ErrorLevel
}

// TrackingFields holds the correlation identifiers extracted from the
// free-form payload. All fields are optional; the empty string means the
// field was absent, which is the common case.
type TrackingFields struct {
	DeviceSN   string `json:"deviceSn,omitempty" db:"device_sn"`
	DeviceMac  string `json:"deviceMac,omitempty" db:"device_mac"`
	LinkCode   string `json:"linkCode,omitempty" db:"link_code"`
	RequestID  string `json:"requestId,omitempty" db:"request_id"`
	AttemptID  string `json:"attemptId,omitempty" db:"attempt_id"`
	ErrorCode  string `json:"errorCode,omitempty" db:"error_code"`
	ReasonCode string `json:"reasonCode,omitempty" db:"reason_code"`
	Stage      string `json:"stage,omitempty" db:"stage"`
	Op         string `json:"op,omitempty" db:"op"`
	Result     string `json:"result,omitempty" db:"result"`
}

// IsZero reports whether no tracking field was extracted
func (t TrackingFields) IsZero() bool {
	return t == TrackingFields{}
}
