package analysis

import (
	"strconv"
	"time"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// TemplateVersion tags every snapshot with the analysis logic that
// produced it. Bump whenever an artifact's shape or semantics change;
// stored snapshots with an older tag are recomputed before being served.
const TemplateVersion = 3

// IsStale reports whether a stored snapshot must be recomputed before
// it can be returned for the current engine version.
func IsStale(snapshot *models.AnalysisSnapshot, currentVersion int) bool {
	return snapshot == nil || snapshot.TemplateVersion < currentVersion
}

// BuildSnapshot derives the full artifact set for one parsed log file.
// Pure over its inputs; persistence is the caller's concern.
func BuildSnapshot(file *models.LogFile, events []*models.LogEvent) *models.AnalysisSnapshot {
	return &models.AnalysisSnapshot{
		LogFileID:       file.ID,
		TemplateVersion: TemplateVersion,
		Artifacts: models.SnapshotArtifacts{
			MainFlow:      buildMainFlow(file, events),
			EventCoverage: buildEventCoverage(events),
			Quality:       buildQuality(file, events),
		},
		UpdatedAt: time.Now(),
	}
}

func buildMainFlow(file *models.LogFile, events []*models.LogEvent) *models.MainFlowAnalysis {
	sessions := ReconstructSessions(file.ProjectID, events)

	flow := &models.MainFlowAnalysis{Sessions: make([]models.SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		flow.Sessions = append(flow.Sessions, models.SessionSummary{
			LinkCode:        s.LinkCode,
			DeviceMac:       s.DeviceMac,
			Status:          s.Status,
			Phase:           s.Phase,
			DurationMs:      s.DurationMs,
			EventCount:      s.EventCount,
			ErrorCount:      s.ErrorCount,
			MilestoneDeltas: s.Milestones.DeltasFromConnect(),
		})
	}

	return flow
}

func buildEventCoverage(events []*models.LogEvent) *models.EventCoverage {
	coverage := &models.EventCoverage{ByName: map[string]int{}}
	for _, ev := range events {
		if ev.EventName == models.EventParserError {
			continue
		}
		coverage.TotalEvents++
		coverage.ByName[ev.EventName]++
	}
	coverage.DistinctNames = len(coverage.ByName)
	return coverage
}

func buildQuality(file *models.LogFile, events []*models.LogEvent) *models.QualityReport {
	quality := &models.QualityReport{
		InvalidLines: file.InvalidLines,
		ByLevel:      map[string]int{},
	}

	var total int
	for _, ev := range events {
		if ev.EventName == models.EventParserError {
			continue
		}
		total++
		quality.ByLevel[strconv.Itoa(ev.Level)]++
		if ev.IsError() {
			quality.ErrorEvents++
		}
		if quality.TimeRangeMs[0] == 0 || ev.TimestampMs < quality.TimeRangeMs[0] {
			quality.TimeRangeMs[0] = ev.TimestampMs
		}
		if ev.TimestampMs > quality.TimeRangeMs[1] {
			quality.TimeRangeMs[1] = ev.TimestampMs
		}
	}

	if total > 0 {
		quality.ErrorRate = float64(quality.ErrorEvents) / float64(total)
	}

	return quality
}
