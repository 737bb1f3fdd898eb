package models

import (
	"github.com/google/uuid"
)

// KnownIssue is a support-curated diagnosis rule. Rules are created and
// deactivated by staff; the matching engine only ever bumps hit counts.
type KnownIssue struct {
	BaseModel
	ProjectID    uuid.UUID `json:"projectId" db:"project_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Solution     string    `json:"solution" db:"solution"`
	Category     string    `json:"category" db:"category"`
	Severity     int       `json:"severity" db:"severity"`
	ErrorCode    string    `json:"errorCode,omitempty" db:"error_code"`
	EventPattern string    `json:"eventPattern,omitempty" db:"event_pattern"`
	MsgPattern   string    `json:"msgPattern,omitempty" db:"msg_pattern"`
	HitCount     int64     `json:"hitCount" db:"hit_count"`
	IsActive     bool      `json:"isActive" db:"is_active"`
}

// MatchType identifies which rule of a known issue matched
type MatchType string

const (
	MatchTypeErrorCode    MatchType = "errorCode"
	MatchTypeEventPattern MatchType = "eventPattern"
	MatchTypeMsgPattern   MatchType = "msgPattern"
)

// MatchResult links an event to a known issue. Ephemeral; never persisted.
type MatchResult struct {
	IssueID    uuid.UUID   `json:"issueId"`
	Issue      *KnownIssue `json:"issue,omitempty"`
	MatchType  MatchType   `json:"matchType"`
	Confidence float64     `json:"confidence"`
}
