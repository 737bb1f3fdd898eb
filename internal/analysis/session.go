package analysis

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// Controlled stage/op/result vocabulary embedded in event payloads
const (
	StageBLE  = "ble"
	StageMQTT = "mqtt"

	OpScan        = "scan"
	OpPair        = "pair"
	OpConnect     = "connect"
	OpAuth        = "auth"
	OpGetData     = "getdata"
	OpReceiveData = "receivedata"
	OpDisconnect  = "disconnect"
	OpPublish     = "publish"
	OpAck         = "ack"

	ResultStart   = "start"
	ResultOk      = "ok"
	ResultTimeout = "timeout"
	ResultFail    = "fail"
)

// Named error codes that drive terminal session state
const (
	CodeAckTimeout     = "ACK_TIMEOUT"
	CodeAckPending     = "ACK_PENDING"
	CodeStreamStall    = "DATA_STREAM_STALL_TIMEOUT"
	CodePersistTimeout = "DATA_PERSIST_TIMEOUT"
	CodeIndexGap       = "INDEX_GAP_BLOCKED"
)

// ReadyReason is the payload reason value marking the device ready handshake
const ReadyReason = "READY"

// ReconstructSession folds the events sharing one link code into an
// immutable DeviceSession. The fold is pure: it owns no shared state, so
// distinct link codes reconstruct safely in parallel, and recomputation
// over the same event set is idempotent.
func ReconstructSession(projectID uuid.UUID, linkCode string, events []*models.LogEvent) *models.DeviceSession {
	session := &models.DeviceSession{
		ProjectID: projectID,
		LinkCode:  linkCode,
		Phase:     models.PhaseScanning,
		Status:    models.SessionStatusIncomplete,
	}
	if len(events) == 0 {
		return session
	}

	ordered := make([]*models.LogEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TimestampMs < ordered[j].TimestampMs
	})

	var (
		ms           = &session.Milestones
		requests     = map[string]bool{}
		ackOkMs      *int64
		ackTimeoutMs *int64
		fatalCode    string
	)

	for _, ev := range ordered {
		tf := ev.Tracking

		session.EventCount++
		if ev.IsError() {
			session.ErrorCount++
		}
		if tf.RequestID != "" {
			requests[tf.RequestID] = true
		}
		if session.DeviceMac == "" && tf.DeviceMac != "" {
			session.DeviceMac = tf.DeviceMac
		}
		if session.DeviceSN == "" && tf.DeviceSN != "" {
			session.DeviceSN = tf.DeviceSN
		}

		stage := strings.ToLower(tf.Stage)
		op := strings.ToLower(tf.Op)
		result := strings.ToLower(tf.Result)
		ts := ev.TimestampMs

		switch stage {
		case StageBLE:
			switch {
			case op == OpScan && result == ResultStart:
				first(&ms.ScanStartMs, ts)
			case op == OpPair && result == ResultStart:
				first(&ms.PairStartMs, ts)
				session.Phase = advance(session.Phase, models.PhasePairing)
			case op == OpConnect && result == ResultStart:
				first(&ms.ConnectStartMs, ts)
				session.Phase = advance(session.Phase, models.PhaseConnecting)
			case op == OpConnect && result == ResultOk:
				first(&ms.ConnectedMs, ts)
				session.Phase = advance(session.Phase, models.PhaseConnected)
			case op == OpAuth && result == ResultOk:
				first(&ms.AuthOkMs, ts)
				session.Phase = advance(session.Phase, models.PhaseConnected)
			case op == OpGetData && result == ResultStart:
				first(&ms.GetDataStartMs, ts)
				session.Phase = advance(session.Phase, models.PhaseCommunicating)
			case op == OpReceiveData && result == ResultOk:
				first(&ms.HistoryDoneMs, ts)
				session.Phase = advance(session.Phase, models.PhaseCommunicating)
			case op == OpDisconnect:
				first(&ms.DisconnectMs, ts)
				session.Phase = advance(session.Phase, models.PhaseDisconnected)
			}
			if strings.EqualFold(tf.ReasonCode, ReadyReason) {
				first(&ms.ReadyOkMs, ts)
			}

		case StageMQTT:
			switch {
			case op == OpPublish && result == ResultStart:
				first(&ms.PublishStartMs, ts)
				session.Phase = advance(session.Phase, models.PhaseCommunicating)
			case op == OpPublish && result == ResultOk:
				first(&ms.PublishOkMs, ts)
				session.Phase = advance(session.Phase, models.PhaseCommunicating)
			case op == OpAck && result == ResultOk:
				first(&ms.AckOkMs, ts)
				last(&ackOkMs, ts)
			case op == OpAck && result == ResultTimeout:
				last(&ackTimeoutMs, ts)
			}
		}

		switch tf.ErrorCode {
		case CodeAckTimeout:
			last(&ackTimeoutMs, ts)
		case CodeAckPending:
			// publish acknowledged but still pending; the session stays open
			session.Phase = advance(session.Phase, models.PhaseCommunicating)
		case CodeStreamStall, CodePersistTimeout, CodeIndexGap:
			fatalCode = tf.ErrorCode
		}
	}

	session.StartTimeMs = ordered[0].TimestampMs
	session.EndTimeMs = ordered[len(ordered)-1].TimestampMs
	if len(ordered) > 1 {
		d := session.EndTimeMs - session.StartTimeMs
		session.DurationMs = &d
	}
	session.CommandCount = len(requests)

	// Status priority: a final ack win beats everything, then ack timeout,
	// then the stall/persist/index-gap codes, then incomplete.
	switch {
	case ackOkMs != nil && (ackTimeoutMs == nil || *ackOkMs >= *ackTimeoutMs):
		session.Status = models.SessionStatusDone
	case ackTimeoutMs != nil:
		session.Status = models.SessionStatusTimeout
		session.Phase = models.PhaseTimeout
	case fatalCode != "":
		session.Status = models.SessionStatusError
		if fatalCode == CodeIndexGap {
			session.Phase = models.PhaseError
		} else {
			session.Phase = models.PhaseTimeout
		}
	default:
		session.Status = models.SessionStatusIncomplete
	}

	return session
}

// GroupByLinkCode splits an event set by its session correlation key.
// Events without a link code are not part of any session.
func GroupByLinkCode(events []*models.LogEvent) map[string][]*models.LogEvent {
	groups := make(map[string][]*models.LogEvent)
	for _, ev := range events {
		if lc := ev.Tracking.LinkCode; lc != "" {
			groups[lc] = append(groups[lc], ev)
		}
	}
	return groups
}

// ReconstructSessions rebuilds every session present in the event set,
// ordered by session start time.
func ReconstructSessions(projectID uuid.UUID, events []*models.LogEvent) []*models.DeviceSession {
	groups := GroupByLinkCode(events)

	sessions := make([]*models.DeviceSession, 0, len(groups))
	for linkCode, group := range groups {
		sessions = append(sessions, ReconstructSession(projectID, linkCode, group))
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTimeMs != sessions[j].StartTimeMs {
			return sessions[i].StartTimeMs < sessions[j].StartTimeMs
		}
		return sessions[i].LinkCode < sessions[j].LinkCode
	})

	return sessions
}

// phaseRank orders the regular phase progression; terminal alternates are
// assigned outside the ladder.
var phaseRank = map[models.SessionPhase]int{
	models.PhaseScanning:      0,
	models.PhasePairing:       1,
	models.PhaseConnecting:    2,
	models.PhaseConnected:     3,
	models.PhaseCommunicating: 4,
	models.PhaseDisconnected:  5,
}

func advance(current, next models.SessionPhase) models.SessionPhase {
	if phaseRank[next] > phaseRank[current] {
		return next
	}
	return current
}

func first(slot **int64, ts int64) {
	if *slot == nil {
		v := ts
		*slot = &v
	}
}

func last(slot **int64, ts int64) {
	v := ts
	*slot = &v
}
