package models

// ChainStatus represents the outcome of one command round-trip
type ChainStatus string

const (
	ChainStatusSuccess ChainStatus = "success"
	ChainStatusPending ChainStatus = "pending"
	ChainStatusError   ChainStatus = "error"
	ChainStatusTimeout ChainStatus = "timeout"
)

// CommandChain groups the events of one command/request round-trip,
// ordered by timestamp. Derived on demand; never persisted.
type CommandChain struct {
	RequestID  string      `json:"requestId"`
	Events     []*LogEvent `json:"events"`
	StartMs    int64       `json:"startMs"`
	EndMs      int64       `json:"endMs"`
	DurationMs int64       `json:"durationMs"`
	Status     ChainStatus `json:"status"`
	EventCount int         `json:"eventCount"`
	Truncated  bool        `json:"truncated,omitempty"`
}
