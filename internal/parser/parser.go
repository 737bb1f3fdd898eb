package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// A decoded file is newline-delimited; single lines can be large when the
// SDK serializes a whole payload dump into msg. Anything past this size is
// dropped as one invalid line while the rest of the file keeps parsing.
const maxLineSize = 4 << 20

// Header/preamble lines written by the on-device logging SDK. Recognized
// case-insensitively on the outer `c` or `n` field and discarded.
var headerSentinels = map[string]bool{
	"clogan":        true,
	"clogan header": true,
}

// outerEnvelope is the bit-exact outer log line contract: `c` carries the
// inner JSON payload, `f` the severity (1=debug…4=error), `l` the device
// clock in epoch milliseconds, `n` the channel/thread name.
type outerEnvelope struct {
	C string `json:"c"`
	F int    `json:"f"`
	L int64  `json:"l"`
	N string `json:"n"`
	I int64  `json:"i"`
	M bool   `json:"m"`
}

// innerEnvelope is the payload carried inside the outer `c` string
type innerEnvelope struct {
	Event string          `json:"event"`
	Msg   json.RawMessage `json:"msg"`
}

// Result is the outcome of parsing one decoded file
type Result struct {
	// Events surviving normalization, sorted by timestamp ascending with
	// encounter order preserved on ties. Includes the synthetic
	// PARSER_ERROR marker when lines had to be dropped.
	Events []*models.LogEvent

	EventCount   int
	ErrorCount   int
	InvalidLines int
	HeaderLines  int
}

// ParseText parses decoded log text into normalized events. Malformed
// lines are dropped and counted, never aborting the batch; a file whose
// every line is garbage still parses to an empty (marker-only) result.
func ParseText(text string, fileID, projectID uuid.UUID) *Result {
	res := &Result{}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if len(line) > maxLineSize {
			res.InvalidLines++
			continue
		}

		event, ok := parseLine(line, fileID, projectID)
		if !ok {
			res.InvalidLines++
			continue
		}
		if event == nil {
			res.HeaderLines++
			continue
		}

		res.Events = append(res.Events, event)
		res.EventCount++
		if event.IsError() {
			res.ErrorCount++
		}
	}

	// Device clocks are monotonic but uploads interleave channels, so the
	// encounter order is not globally sorted. Ties keep encounter order.
	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].TimestampMs < res.Events[j].TimestampMs
	})

	if res.InvalidLines > 0 {
		res.Events = append(res.Events, markerEvent(res, fileID, projectID))
	}

	return res
}

// parseLine returns (nil, true) for recognized header lines and
// (nil, false) for lines that must be dropped as invalid.
func parseLine(line string, fileID, projectID uuid.UUID) (*models.LogEvent, bool) {
	var outer outerEnvelope
	if err := json.Unmarshal([]byte(line), &outer); err != nil {
		return nil, false
	}

	if headerSentinels[strings.ToLower(outer.C)] || headerSentinels[strings.ToLower(outer.N)] {
		return nil, true
	}

	if outer.C == "" || outer.F == 0 || outer.L == 0 {
		return nil, false
	}

	var inner innerEnvelope
	if err := json.Unmarshal([]byte(outer.C), &inner); err != nil {
		return nil, false
	}
	if inner.Event == "" {
		return nil, false
	}

	payload := parsePayload(inner.Msg)

	return &models.LogEvent{
		ID:          uuid.New(),
		LogFileID:   fileID,
		ProjectID:   projectID,
		TimestampMs: outer.L,
		Level:       outer.F,
		EventName:   inner.Event,
		Payload:     models.JSONValue{V: payload},
		Tracking:    ExtractTrackingFields(payload),
		RawLine:     line,
	}, true
}

// parsePayload normalizes the free-form msg value. Strings resembling a
// JSON object are opportunistically deep-parsed; any parse failure falls
// back to the raw string.
func parsePayload(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	s, ok := v.(string)
	if !ok {
		return v
	}

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var nested interface{}
		if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
			return nested
		}
	}

	return s
}

// markerEvent builds the synthetic PARSER_ERROR event that keeps dropped
// lines visible in search without corrupting the real event stream. It is
// excluded from the event/error aggregates.
func markerEvent(res *Result, fileID, projectID uuid.UUID) *models.LogEvent {
	var ts int64
	if n := len(res.Events); n > 0 {
		ts = res.Events[n-1].TimestampMs
	}

	return &models.LogEvent{
		ID:          uuid.New(),
		LogFileID:   fileID,
		ProjectID:   projectID,
		TimestampMs: ts,
		Level:       models.LevelWarn,
		EventName:   models.EventParserError,
		Payload: models.JSONValue{V: map[string]interface{}{
			"invalidLines": res.InvalidLines,
		}},
	}
}
