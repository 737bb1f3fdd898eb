package analysis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

func issue(title string, severity int, mutate func(*models.KnownIssue)) *models.KnownIssue {
	i := &models.KnownIssue{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Title:     title,
		Severity:  severity,
		IsActive:  true,
	}
	if mutate != nil {
		mutate(i)
	}
	return i
}

func TestMatchErrorCodeExact(t *testing.T) {
	iss := issue("connection refused", 4, func(i *models.KnownIssue) {
		i.ErrorCode = "E-CONN"
	})

	results, hits := NewMatcher().MatchEvent([]*models.KnownIssue{iss}, MatchInput{
		EventName: "BLE_CONNECT_FAIL",
		ErrorCode: "E-CONN",
	})

	require.Len(t, results, 1)
	require.Equal(t, models.MatchTypeErrorCode, results[0].MatchType)
	require.Equal(t, 1.0, results[0].Confidence)
	require.Equal(t, []uuid.UUID{iss.ID}, hits)
}

func TestErrorCodeWinsOverEventPattern(t *testing.T) {
	iss := issue("both rules", 4, func(i *models.KnownIssue) {
		i.ErrorCode = "E-CONN"
		i.EventPattern = "BLE_CONNECT.*"
	})

	results, _ := NewMatcher().MatchEvent([]*models.KnownIssue{iss}, MatchInput{
		EventName: "BLE_CONNECT_FAIL",
		ErrorCode: "E-CONN",
	})

	require.Len(t, results, 1)
	require.Equal(t, models.MatchTypeErrorCode, results[0].MatchType)
	require.Equal(t, 1.0, results[0].Confidence)
}

func TestEventPatternCaseInsensitive(t *testing.T) {
	iss := issue("pattern", 3, func(i *models.KnownIssue) {
		i.EventPattern = "ble_connect.*"
	})

	results, _ := NewMatcher().MatchEvent([]*models.KnownIssue{iss}, MatchInput{
		EventName: "BLE_CONNECT_TIMEOUT",
	})

	require.Len(t, results, 1)
	require.Equal(t, models.MatchTypeEventPattern, results[0].MatchType)
	require.Equal(t, 0.9, results[0].Confidence)
}

func TestMsgPatternConfidence(t *testing.T) {
	iss := issue("msg pattern", 3, func(i *models.KnownIssue) {
		i.MsgPattern = "gatt error 133"
	})

	results, _ := NewMatcher().MatchEvent([]*models.KnownIssue{iss}, MatchInput{
		EventName: "BLE_ERROR",
		Msg:       "connect failed: GATT error 133",
	})

	require.Len(t, results, 1)
	require.Equal(t, models.MatchTypeMsgPattern, results[0].MatchType)
	require.Equal(t, 0.8, results[0].Confidence)
}

func TestInvalidRegexIsSkippedNotFatal(t *testing.T) {
	bad := issue("broken rule", 5, func(i *models.KnownIssue) {
		i.EventPattern = "([unclosed"
		i.MsgPattern = "fallback msg"
	})
	good := issue("good rule", 4, func(i *models.KnownIssue) {
		i.EventPattern = "BLE_.*"
	})

	results, hits := NewMatcher().MatchEvent([]*models.KnownIssue{bad, good}, MatchInput{
		EventName: "BLE_CONNECT",
		Msg:       "fallback msg goes here",
	})

	// the broken event pattern is skipped; the issue still matches via msg
	require.Len(t, results, 2)
	require.Equal(t, models.MatchTypeMsgPattern, results[0].MatchType)
	require.Equal(t, models.MatchTypeEventPattern, results[1].MatchType)
	require.Len(t, hits, 2)
}

func TestMatchBatchDedupesHitIDs(t *testing.T) {
	iss := issue("common failure", 4, func(i *models.KnownIssue) {
		i.ErrorCode = "E-CONN"
	})

	inputs := make([]MatchInput, 10)
	for i := range inputs {
		inputs[i] = MatchInput{EventName: "BLE_CONNECT_FAIL", ErrorCode: "E-CONN"}
	}

	perEvent, hits := NewMatcher().MatchBatch([]*models.KnownIssue{iss}, inputs)

	require.Len(t, perEvent, 10)
	for _, results := range perEvent {
		require.Len(t, results, 1)
	}
	// one distinct issue hit across the whole batch
	require.Equal(t, []uuid.UUID{iss.ID}, hits)
}

func TestMatchBatchCap(t *testing.T) {
	iss := issue("any", 1, func(i *models.KnownIssue) {
		i.EventPattern = ".*"
	})

	inputs := make([]MatchInput, MaxMatchBatch+20)
	for i := range inputs {
		inputs[i] = MatchInput{EventName: "X"}
	}

	perEvent, _ := NewMatcher().MatchBatch([]*models.KnownIssue{iss}, inputs)
	require.Len(t, perEvent, MaxMatchBatch)
}

func TestNoMatchOnEmptyOptionalData(t *testing.T) {
	iss := issue("error code only", 3, func(i *models.KnownIssue) {
		i.ErrorCode = "E-CONN"
	})

	results, hits := NewMatcher().MatchEvent([]*models.KnownIssue{iss}, MatchInput{
		EventName: "SOMETHING_ELSE",
	})

	require.Empty(t, results)
	require.Empty(t, hits)
}
