package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

func chainEvent(ts int64, requestID, op, result string) *models.LogEvent {
	ev := sessEvent(ts, StageMQTT, op, result)
	ev.Tracking.RequestID = requestID
	return ev
}

func TestChainGroupingAndOrder(t *testing.T) {
	events := []*models.LogEvent{
		chainEvent(500, "r2", OpPublish, ResultStart),
		chainEvent(100, "r1", OpPublish, ResultStart),
		chainEvent(300, "r1", OpAck, ResultOk),
		sessEvent(50, StageBLE, OpScan, ResultStart), // no request id
	}

	chains := ReconstructChains(events, ChainOptions{})
	require.Len(t, chains, 2)

	require.Equal(t, "r1", chains[0].RequestID)
	require.Equal(t, int64(100), chains[0].StartMs)
	require.Equal(t, int64(300), chains[0].EndMs)
	require.Equal(t, int64(200), chains[0].DurationMs)
	require.Equal(t, models.ChainStatusSuccess, chains[0].Status)

	require.Equal(t, "r2", chains[1].RequestID)
	require.Equal(t, models.ChainStatusPending, chains[1].Status)
}

func TestChainTimeoutAndError(t *testing.T) {
	timeoutChain := []*models.LogEvent{
		chainEvent(100, "rt", OpPublish, ResultStart),
		func() *models.LogEvent {
			ev := chainEvent(200, "rt", "", "")
			ev.Tracking.ErrorCode = CodeAckTimeout
			return ev
		}(),
	}

	chains := ReconstructChains(timeoutChain, ChainOptions{})
	require.Len(t, chains, 1)
	require.Equal(t, models.ChainStatusTimeout, chains[0].Status)

	errorChain := []*models.LogEvent{
		chainEvent(100, "re", OpPublish, ResultFail),
	}
	chains = ReconstructChains(errorChain, ChainOptions{})
	require.Equal(t, models.ChainStatusError, chains[0].Status)
}

func TestChainCaps(t *testing.T) {
	var events []*models.LogEvent
	for i := 0; i < 10; i++ {
		rid := fmt.Sprintf("r%02d", i)
		for j := 0; j < 5; j++ {
			events = append(events, chainEvent(int64(i*100+j), rid, OpPublish, ResultStart))
		}
	}

	chains := ReconstructChains(events, ChainOptions{MaxChains: 3, MaxEventsPerChain: 2})
	require.Len(t, chains, 3)
	for _, chain := range chains {
		require.Len(t, chain.Events, 2)
		require.True(t, chain.Truncated)
		require.Equal(t, 5, chain.EventCount)
	}
}
