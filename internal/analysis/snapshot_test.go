package analysis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

func TestIsStale(t *testing.T) {
	require.True(t, IsStale(nil, TemplateVersion))
	require.True(t, IsStale(&models.AnalysisSnapshot{TemplateVersion: TemplateVersion - 1}, TemplateVersion))
	require.False(t, IsStale(&models.AnalysisSnapshot{TemplateVersion: TemplateVersion}, TemplateVersion))
	require.False(t, IsStale(&models.AnalysisSnapshot{TemplateVersion: TemplateVersion + 1}, TemplateVersion))
}

func TestBuildSnapshotArtifacts(t *testing.T) {
	file := &models.LogFile{
		BaseModel:    models.BaseModel{ID: uuid.New()},
		ProjectID:    sessProject,
		InvalidLines: 2,
	}

	events := []*models.LogEvent{
		sessEvent(100, StageBLE, OpConnect, ResultStart),
		sessEvent(200, StageMQTT, OpAck, ResultOk),
		codedEvent(300, CodeAckTimeout),
		{
			ID:          uuid.New(),
			TimestampMs: 300,
			Level:       models.LevelWarn,
			EventName:   models.EventParserError,
		},
	}

	snapshot := BuildSnapshot(file, events)

	require.Equal(t, file.ID, snapshot.LogFileID)
	require.Equal(t, TemplateVersion, snapshot.TemplateVersion)

	flow := snapshot.Artifacts.MainFlow
	require.NotNil(t, flow)
	require.Len(t, flow.Sessions, 1)
	require.Equal(t, "LC-1", flow.Sessions[0].LinkCode)
	// ackOk at 200, ack timeout code at 300: the later timeout wins
	require.Equal(t, models.SessionStatusTimeout, flow.Sessions[0].Status)

	coverage := snapshot.Artifacts.EventCoverage
	require.NotNil(t, coverage)
	// the synthetic parser marker is not part of coverage
	require.Equal(t, 3, coverage.TotalEvents)
	require.NotContains(t, coverage.ByName, models.EventParserError)

	quality := snapshot.Artifacts.Quality
	require.NotNil(t, quality)
	require.Equal(t, 2, quality.InvalidLines)
	require.Equal(t, 1, quality.ErrorEvents)
	require.InDelta(t, 1.0/3.0, quality.ErrorRate, 1e-9)
	require.Equal(t, [2]int64{100, 300}, quality.TimeRangeMs)
}
