package analysis

import (
	"sort"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// Chain reconstruction caps. Memory over a large window is bounded by
// limiting both the number of chains and the events kept per chain.
const (
	DefaultMaxChains         = 50
	DefaultMaxEventsPerChain = 200
)

// ChainOptions bounds one chain reconstruction run
type ChainOptions struct {
	MaxChains         int
	MaxEventsPerChain int
}

func (o ChainOptions) withDefaults() ChainOptions {
	if o.MaxChains <= 0 {
		o.MaxChains = DefaultMaxChains
	}
	if o.MaxEventsPerChain <= 0 {
		o.MaxEventsPerChain = DefaultMaxEventsPerChain
	}
	return o
}

// ReconstructChains groups events by request id into ordered, classified
// command chains. Chains are returned in start-time order, capped by the
// options; events beyond the per-chain cap are dropped and flagged.
func ReconstructChains(events []*models.LogEvent, opts ChainOptions) []*models.CommandChain {
	opts = opts.withDefaults()

	groups := make(map[string][]*models.LogEvent)
	for _, ev := range events {
		if rid := ev.Tracking.RequestID; rid != "" {
			groups[rid] = append(groups[rid], ev)
		}
	}

	chains := make([]*models.CommandChain, 0, len(groups))
	for rid, group := range groups {
		chains = append(chains, buildChain(rid, group, opts.MaxEventsPerChain))
	}

	sort.Slice(chains, func(i, j int) bool {
		if chains[i].StartMs != chains[j].StartMs {
			return chains[i].StartMs < chains[j].StartMs
		}
		return chains[i].RequestID < chains[j].RequestID
	})

	if len(chains) > opts.MaxChains {
		chains = chains[:opts.MaxChains]
	}

	return chains
}

func buildChain(requestID string, events []*models.LogEvent, maxEvents int) *models.CommandChain {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampMs < events[j].TimestampMs
	})

	chain := &models.CommandChain{
		RequestID:  requestID,
		StartMs:    events[0].TimestampMs,
		EndMs:      events[len(events)-1].TimestampMs,
		Status:     models.ChainStatusPending,
		EventCount: len(events),
	}
	chain.DurationMs = chain.EndMs - chain.StartMs

	// Classification scans the full group even when the returned event
	// list is truncated.
	chain.Status = classifyChain(events)

	if len(events) > maxEvents {
		events = events[:maxEvents]
		chain.Truncated = true
	}
	chain.Events = events

	return chain
}

// classifyChain derives the chain outcome from its terminal markers
func classifyChain(events []*models.LogEvent) models.ChainStatus {
	status := models.ChainStatusPending

	for _, ev := range events {
		tf := ev.Tracking

		switch tf.ErrorCode {
		case CodeAckTimeout:
			status = models.ChainStatusTimeout
			continue
		case CodeStreamStall, CodePersistTimeout, CodeIndexGap:
			status = models.ChainStatusError
			continue
		}

		switch tf.Result {
		case ResultOk:
			if tf.Op == OpAck || tf.Op == OpReceiveData {
				status = models.ChainStatusSuccess
			}
		case ResultTimeout:
			status = models.ChainStatusTimeout
		case ResultFail:
			status = models.ChainStatusError
		}
	}

	return status
}
