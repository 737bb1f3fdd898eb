package analysis

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// Window is a time-bounded, optionally device-filtered event set handed
// to each scanner.
type Window struct {
	ProjectID uuid.UUID
	StartMs   int64
	EndMs     int64
	DeviceMac string
	Events    []*models.LogEvent
}

// Scanner is one independent anomaly heuristic. Scanners are
// side-effect-free; a scanner that blows up must not prevent the
// others from running.
type Scanner interface {
	ID() string
	Run(w Window) []models.AnomalyPattern
}

// Scanners returns the fixed scanner registry, in evaluation order
func Scanners() []Scanner {
	return []Scanner{
		frequentDisconnectScanner{},
		ackTimeoutBurstScanner{},
		streamStallScanner{},
		errorBurstScanner{},
	}
}

// Detect runs every registered scanner over the window and aggregates
// the findings with a summary.
func Detect(w Window) *models.AnomalyReport {
	return detectWith(w, Scanners())
}

func detectWith(w Window, scanners []Scanner) *models.AnomalyReport {
	report := &models.AnomalyReport{
		ProjectID: w.ProjectID,
		StartMs:   w.StartMs,
		EndMs:     w.EndMs,
		DeviceMac: w.DeviceMac,
		Patterns:  []models.AnomalyPattern{},
	}

	for _, scanner := range scanners {
		patterns := runScanner(scanner, w)
		report.Patterns = append(report.Patterns, patterns...)
	}

	report.Summary = map[string]int{
		"totalEvents":      len(w.Events),
		"disconnectEvents": countMatching(w.Events, isDisconnectEvent),
		"errorEvents":      countMatching(w.Events, func(ev *models.LogEvent) bool { return ev.IsError() }),
		"patterns":         len(report.Patterns),
	}

	return report
}

// runScanner isolates one scanner run so a malformed-evidence panic in
// one heuristic never takes down the detector.
func runScanner(scanner Scanner, w Window) (patterns []models.AnomalyPattern) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("scanner", scanner.ID()).
				Interface("panic", r).
				Msg("Anomaly scanner failed")
			patterns = nil
		}
	}()

	return scanner.Run(w)
}

func countMatching(events []*models.LogEvent, match func(*models.LogEvent) bool) int {
	n := 0
	for _, ev := range events {
		if match(ev) {
			n++
		}
	}
	return n
}

// ========== frequent_disconnect ==========

// Event name vocabulary treated as a link drop
var disconnectVocab = []string{
	"DISCONNECT",
	"DISCONNECTED",
	"CONNECTION_LOST",
	"LINK_LOST",
	"GATT_DISCONNECT",
}

const frequentDisconnectThreshold = 3

func isDisconnectEvent(ev *models.LogEvent) bool {
	name := strings.ToUpper(ev.EventName)
	for _, word := range disconnectVocab {
		if strings.Contains(name, word) {
			return true
		}
	}
	return strings.EqualFold(ev.Tracking.Op, OpDisconnect)
}

type frequentDisconnectScanner struct{}

func (frequentDisconnectScanner) ID() string { return "frequent_disconnect" }

func (s frequentDisconnectScanner) Run(w Window) []models.AnomalyPattern {
	evidence := collectEvidence(w.Events, isDisconnectEvent)
	if evidence.Count <= frequentDisconnectThreshold {
		return nil
	}

	return []models.AnomalyPattern{{
		PatternType: s.ID(),
		Description: "device link dropped repeatedly within the window",
		ProjectID:   w.ProjectID,
		DeviceMac:   w.DeviceMac,
		StartMs:     w.StartMs,
		EndMs:       w.EndMs,
		Evidence:    evidence,
	}}
}

// ========== ack_timeout_burst ==========

const ackTimeoutBurstThreshold = 2

type ackTimeoutBurstScanner struct{}

func (ackTimeoutBurstScanner) ID() string { return "ack_timeout_burst" }

func (s ackTimeoutBurstScanner) Run(w Window) []models.AnomalyPattern {
	evidence := collectEvidence(w.Events, func(ev *models.LogEvent) bool {
		code := ev.Tracking.ErrorCode
		return code == CodeAckTimeout || code == CodeAckPending
	})
	if evidence.Count < ackTimeoutBurstThreshold {
		return nil
	}

	return []models.AnomalyPattern{{
		PatternType: s.ID(),
		Description: "publish acknowledgements repeatedly timed out or stalled",
		ProjectID:   w.ProjectID,
		DeviceMac:   w.DeviceMac,
		StartMs:     w.StartMs,
		EndMs:       w.EndMs,
		Evidence:    evidence,
	}}
}

// ========== stream_stall ==========

type streamStallScanner struct{}

func (streamStallScanner) ID() string { return "stream_stall" }

func (s streamStallScanner) Run(w Window) []models.AnomalyPattern {
	evidence := collectEvidence(w.Events, func(ev *models.LogEvent) bool {
		switch ev.Tracking.ErrorCode {
		case CodeStreamStall, CodePersistTimeout, CodeIndexGap:
			return true
		}
		return false
	})
	if evidence.Count == 0 {
		return nil
	}

	return []models.AnomalyPattern{{
		PatternType: s.ID(),
		Description: "data stream stalled or persistence blocked",
		ProjectID:   w.ProjectID,
		DeviceMac:   w.DeviceMac,
		StartMs:     w.StartMs,
		EndMs:       w.EndMs,
		Evidence:    evidence,
	}}
}

// ========== error_burst ==========

const errorBurstThreshold = 10

type errorBurstScanner struct{}

func (errorBurstScanner) ID() string { return "error_burst" }

func (s errorBurstScanner) Run(w Window) []models.AnomalyPattern {
	evidence := collectEvidence(w.Events, func(ev *models.LogEvent) bool { return ev.IsError() })
	if evidence.Count < errorBurstThreshold {
		return nil
	}

	return []models.AnomalyPattern{{
		PatternType: s.ID(),
		Description: "unusually dense error activity within the window",
		ProjectID:   w.ProjectID,
		DeviceMac:   w.DeviceMac,
		StartMs:     w.StartMs,
		EndMs:       w.EndMs,
		Evidence:    evidence,
	}}
}

// collectEvidence gathers ids and per-name counts for matching events
func collectEvidence(events []*models.LogEvent, match func(*models.LogEvent) bool) models.AnomalyEvidence {
	evidence := models.AnomalyEvidence{ByName: map[string]int{}}
	for _, ev := range events {
		if !match(ev) {
			continue
		}
		evidence.Count++
		evidence.EventIDs = append(evidence.EventIDs, ev.ID)
		evidence.ByName[ev.EventName]++
	}
	if evidence.Count == 0 {
		evidence.ByName = nil
	}
	return evidence
}
