package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionPhase is the furthest phase a device connection reached.
// Regular progression is scanning → pairing → connecting → connected →
// communicating → disconnected; timeout and error are terminal alternates
// reachable from any non-terminal phase.
type SessionPhase string

const (
	PhaseScanning      SessionPhase = "scanning"
	PhasePairing       SessionPhase = "pairing"
	PhaseConnecting    SessionPhase = "connecting"
	PhaseConnected     SessionPhase = "connected"
	PhaseCommunicating SessionPhase = "communicating"
	PhaseDisconnected  SessionPhase = "disconnected"
	PhaseTimeout       SessionPhase = "timeout"
	PhaseError         SessionPhase = "error"
)

// SessionStatus is the triage outcome derived from the full event set
type SessionStatus string

const (
	SessionStatusDone       SessionStatus = "done"
	SessionStatusTimeout    SessionStatus = "timeout"
	SessionStatusError      SessionStatus = "error"
	SessionStatusIncomplete SessionStatus = "incomplete"
)

// DeviceSession is a materialized view over the LogEvent set sharing one
// link code. It carries no state that cannot be recomputed by re-scanning
// the underlying events.
type DeviceSession struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	ProjectID    uuid.UUID         `json:"projectId" db:"project_id"`
	LinkCode     string            `json:"linkCode" db:"link_code"`
	DeviceMac    string            `json:"deviceMac,omitempty" db:"device_mac"`
	DeviceSN     string            `json:"deviceSn,omitempty" db:"device_sn"`
	StartTimeMs  int64             `json:"startTimeMs" db:"start_time_ms"`
	EndTimeMs    int64             `json:"endTimeMs" db:"end_time_ms"`
	DurationMs   *int64            `json:"durationMs,omitempty" db:"duration_ms"`
	Phase        SessionPhase      `json:"phase" db:"phase"`
	Status       SessionStatus     `json:"status" db:"status"`
	EventCount   int               `json:"eventCount" db:"event_count"`
	ErrorCount   int               `json:"errorCount" db:"error_count"`
	CommandCount int               `json:"commandCount" db:"command_count"`
	Milestones   SessionMilestones `json:"milestones" db:"milestones"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" db:"updated_at"`
}

// SessionMilestones records the first occurrence of each phase landmark,
// in absolute device-clock epoch milliseconds. A nil entry means the
// landmark was never observed.
type SessionMilestones struct {
	ScanStartMs    *int64 `json:"scanStartMs,omitempty"`
	PairStartMs    *int64 `json:"pairStartMs,omitempty"`
	ConnectStartMs *int64 `json:"connectStartMs,omitempty"`
	ConnectedMs    *int64 `json:"connectedMs,omitempty"`
	AuthOkMs       *int64 `json:"authOkMs,omitempty"`
	ReadyOkMs      *int64 `json:"readyOkMs,omitempty"`
	GetDataStartMs *int64 `json:"getDataStartMs,omitempty"`
	HistoryDoneMs  *int64 `json:"historyDoneMs,omitempty"`
	PublishStartMs *int64 `json:"publishStartMs,omitempty"`
	PublishOkMs    *int64 `json:"publishOkMs,omitempty"`
	AckOkMs        *int64 `json:"ackOkMs,omitempty"`
	DisconnectMs   *int64 `json:"disconnectMs,omitempty"`
}

// Value implements driver.Valuer interface
func (m SessionMilestones) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner interface
func (m *SessionMilestones) Scan(value interface{}) error {
	if value == nil {
		*m = SessionMilestones{}
		return nil
	}

	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	default:
		return json.Unmarshal([]byte(data.(string)), m)
	}
}

// DeltasFromConnect reports each observed milestone as an offset in
// milliseconds since connectStart, for triage reporting. Milestones before
// connectStart (scan, pair) are negative. Empty when connectStart itself
// was never observed.
func (m SessionMilestones) DeltasFromConnect() map[string]int64 {
	if m.ConnectStartMs == nil {
		return nil
	}

	base := *m.ConnectStartMs
	deltas := make(map[string]int64)
	add := func(name string, ts *int64) {
		if ts != nil {
			deltas[name] = *ts - base
		}
	}

	add("scanStart", m.ScanStartMs)
	add("pairStart", m.PairStartMs)
	add("connected", m.ConnectedMs)
	add("authOk", m.AuthOkMs)
	add("readyOk", m.ReadyOkMs)
	add("getDataStart", m.GetDataStartMs)
	add("historyDone", m.HistoryDoneMs)
	add("publishStart", m.PublishStartMs)
	add("publishOk", m.PublishOkMs)
	add("ackOk", m.AckOkMs)
	add("disconnect", m.DisconnectMs)

	return deltas
}
