package analysis

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// MaxMatchBatch caps how many events one batch match call may carry
const MaxMatchBatch = 100

// Match confidence per rule kind: an exact error code always beats a
// pattern match.
const (
	ConfidenceErrorCode    = 1.0
	ConfidenceEventPattern = 0.9
	ConfidenceMsgPattern   = 0.8
)

// MatchInput is the event-shaped input to the matcher
type MatchInput struct {
	EventID   uuid.UUID `json:"eventId,omitempty"`
	EventName string    `json:"eventName"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Msg       string    `json:"msg,omitempty"`
}

// Matcher evaluates events against a project's active known-issue set.
// The issue slice is expected ordered by descending severity, which the
// storage layer guarantees; match results keep that order.
type Matcher struct {
	// compiled patterns are cached per Matcher, so one request-scoped
	// matcher compiles each stored regex at most once
	cache map[string]*regexp.Regexp
}

// NewMatcher creates a matcher
func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string]*regexp.Regexp)}
}

// MatchEvent evaluates one event against every issue. Each issue
// contributes at most one match: error code equality first, then the
// event-name pattern, then the msg pattern. Returns the matches and the
// distinct issue ids hit (the caller increments hit counts once per id).
func (m *Matcher) MatchEvent(issues []*models.KnownIssue, in MatchInput) ([]models.MatchResult, []uuid.UUID) {
	var results []models.MatchResult
	var hitIDs []uuid.UUID

	for _, issue := range issues {
		result, ok := m.matchIssue(issue, in)
		if !ok {
			continue
		}
		results = append(results, result)
		hitIDs = append(hitIDs, issue.ID)
	}

	return results, hitIDs
}

// MatchBatch evaluates up to MaxMatchBatch events, returning per-event
// match lists and the distinct set of hit issue ids. Hit ids are
// deduplicated across the whole batch: an issue matching every event in
// the batch is still reported (and counted) once.
func (m *Matcher) MatchBatch(issues []*models.KnownIssue, inputs []MatchInput) ([][]models.MatchResult, []uuid.UUID) {
	if len(inputs) > MaxMatchBatch {
		inputs = inputs[:MaxMatchBatch]
	}

	perEvent := make([][]models.MatchResult, len(inputs))
	seen := make(map[uuid.UUID]bool)
	var hitIDs []uuid.UUID

	for i, in := range inputs {
		results, ids := m.MatchEvent(issues, in)
		perEvent[i] = results
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				hitIDs = append(hitIDs, id)
			}
		}
	}

	return perEvent, hitIDs
}

// matchIssue applies the issue's rules in priority order; the first
// successful rule wins. An invalid stored regex skips that rule only.
func (m *Matcher) matchIssue(issue *models.KnownIssue, in MatchInput) (models.MatchResult, bool) {
	if issue.ErrorCode != "" && in.ErrorCode != "" && issue.ErrorCode == in.ErrorCode {
		return m.result(issue, models.MatchTypeErrorCode, ConfidenceErrorCode), true
	}

	if issue.EventPattern != "" && in.EventName != "" {
		if re := m.compile(issue, issue.EventPattern); re != nil && re.MatchString(in.EventName) {
			return m.result(issue, models.MatchTypeEventPattern, ConfidenceEventPattern), true
		}
	}

	if issue.MsgPattern != "" && in.Msg != "" {
		if re := m.compile(issue, issue.MsgPattern); re != nil && re.MatchString(in.Msg) {
			return m.result(issue, models.MatchTypeMsgPattern, ConfidenceMsgPattern), true
		}
	}

	return models.MatchResult{}, false
}

func (m *Matcher) result(issue *models.KnownIssue, matchType models.MatchType, confidence float64) models.MatchResult {
	return models.MatchResult{
		IssueID:    issue.ID,
		Issue:      issue,
		MatchType:  matchType,
		Confidence: confidence,
	}
}

// compile returns the cached case-insensitive pattern, or nil when the
// stored expression does not compile. A bad rule is logged and skipped,
// never failing the scan.
func (m *Matcher) compile(issue *models.KnownIssue, pattern string) *regexp.Regexp {
	if re, ok := m.cache[pattern]; ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		log.Warn().
			Err(err).
			Str("issue_id", issue.ID.String()).
			Str("pattern", pattern).
			Msg("Skipping known issue rule with invalid regex")
		re = nil
	}

	m.cache[pattern] = re
	return re
}
