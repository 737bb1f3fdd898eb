package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

func namedEvent(ts int64, name string) *models.LogEvent {
	ev := sessEvent(ts, "", "", "")
	ev.EventName = name
	return ev
}

func TestFrequentDisconnectBelowThreshold(t *testing.T) {
	w := Window{Events: []*models.LogEvent{
		namedEvent(100, "BLE_DISCONNECT"),
		namedEvent(200, "CONNECTION_LOST"),
		namedEvent(300, "DISCONNECTED"),
	}}

	patterns := frequentDisconnectScanner{}.Run(w)
	require.Empty(t, patterns)
}

func TestFrequentDisconnectAboveThreshold(t *testing.T) {
	w := Window{Events: []*models.LogEvent{
		namedEvent(100, "BLE_DISCONNECT"),
		namedEvent(200, "CONNECTION_LOST"),
		namedEvent(300, "DISCONNECTED"),
		namedEvent(400, "GATT_DISCONNECT"),
	}}

	patterns := frequentDisconnectScanner{}.Run(w)
	require.Len(t, patterns, 1)
	require.Equal(t, "frequent_disconnect", patterns[0].PatternType)
	require.Equal(t, 4, patterns[0].Evidence.Count)
	require.Len(t, patterns[0].Evidence.EventIDs, 4)
}

func TestAckTimeoutBurst(t *testing.T) {
	w := Window{Events: []*models.LogEvent{
		codedEvent(100, CodeAckTimeout),
		codedEvent(200, CodeAckPending),
	}}

	patterns := ackTimeoutBurstScanner{}.Run(w)
	require.Len(t, patterns, 1)
	require.Equal(t, "ack_timeout_burst", patterns[0].PatternType)
}

func TestStreamStallFlagsSingleOccurrence(t *testing.T) {
	w := Window{Events: []*models.LogEvent{
		codedEvent(100, CodeStreamStall),
	}}

	patterns := streamStallScanner{}.Run(w)
	require.Len(t, patterns, 1)
	require.Equal(t, 1, patterns[0].Evidence.Count)
}

func TestDetectSummary(t *testing.T) {
	events := []*models.LogEvent{
		namedEvent(100, "DISCONNECTED"),
		codedEvent(200, CodeStreamStall),
		sessEvent(300, StageBLE, OpConnect, ResultStart),
	}

	report := Detect(Window{Events: events})
	require.Equal(t, 3, report.Summary["totalEvents"])
	require.Equal(t, 1, report.Summary["disconnectEvents"])
	require.Equal(t, 1, report.Summary["errorEvents"])
	require.Equal(t, len(report.Patterns), report.Summary["patterns"])
}

type panicScanner struct{}

func (panicScanner) ID() string { return "panic_scanner" }

func (panicScanner) Run(Window) []models.AnomalyPattern {
	panic("malformed evidence")
}

func TestScannerFailureIsIsolated(t *testing.T) {
	events := []*models.LogEvent{
		codedEvent(100, CodeStreamStall),
	}

	report := detectWith(Window{Events: events}, []Scanner{
		panicScanner{},
		streamStallScanner{},
	})

	// the panicking scanner contributes nothing; the stall scanner still runs
	require.Len(t, report.Patterns, 1)
	require.Equal(t, "stream_stall", report.Patterns[0].PatternType)
}
