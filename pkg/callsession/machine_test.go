package callsession

import (
	"errors"
	"testing"

	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type completionRecorder struct {
	snaps    []Snapshot
	statuses []CallStatus
}

func (c *completionRecorder) record(snap Snapshot, status CallStatus) {
	c.snaps = append(c.snaps, snap)
	c.statuses = append(c.statuses, status)
}

func TestBeginOutbound(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	assert.True(t, m.BeginOutbound("+14155550123"))
	assert.Equal(t, PhaseRinging, m.Phase())
	assert.Equal(t, "+14155550123", m.Snapshot().Number)
	assert.Equal(t, CallDirectionOutbound, m.Snapshot().Direction)

	// A second attempt while ringing is rejected without changing state.
	assert.False(t, m.BeginOutbound("+14155550999"))
	assert.Equal(t, "+14155550123", m.Snapshot().Number)
}

func TestPhaseGaugeFollowsTransitions(t *testing.T) {
	m := NewMachine(nil)

	assert.True(t, m.BeginOutbound("+14155550123"))
	assert.Equal(t, float64(PhaseRinging), testutil.ToFloat64(metrics.CallPhase))

	m.Apply(NewEvent(EventKindAccepted).WithCallID("CA1"))
	assert.Equal(t, float64(PhaseConnected), testutil.ToFloat64(metrics.CallPhase))

	m.Apply(NewEvent(EventKindDisconnected))
	assert.Equal(t, float64(PhaseIdle), testutil.ToFloat64(metrics.CallPhase))
}

func TestAcceptThenCancelRace(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindAccepted).WithCallID("CA123"))
	assert.Equal(t, PhaseConnected, m.Phase())
	assert.False(t, m.Snapshot().StartedAt.IsZero())

	// A trailing cancel must not tear down the connected call.
	m.Apply(NewEvent(EventKindCancelled))
	assert.Equal(t, PhaseConnected, m.Phase())
	assert.Equal(t, "CA123", m.Snapshot().ProviderCallID)
	assert.Empty(t, rec.statuses)
}

func TestCancelBeforeAcceptProducesNoLog(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindCancelled))

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.True(t, m.Snapshot().StartedAt.IsZero())
	assert.Empty(t, rec.statuses, "a call that never connected must not be logged")
}

func TestConnectedNeverWithoutStartTime(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	assert.True(t, m.Snapshot().StartedAt.IsZero())

	m.Apply(NewEvent(EventKindAccepted))
	snap := m.Snapshot()
	assert.Equal(t, PhaseConnected, snap.Phase)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestDisconnectCompletesCall(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindAccepted).WithCallID("CA42"))
	m.Apply(NewEvent(EventKindDisconnected))

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.True(t, m.Snapshot().StartedAt.IsZero(), "start time cleared on return to idle")
	if assert.Len(t, rec.statuses, 1) {
		assert.Equal(t, CallStatusCompleted, rec.statuses[0])
		assert.Equal(t, "CA42", rec.snaps[0].ProviderCallID)
		assert.Equal(t, "+14155550123", rec.snaps[0].Number)
		assert.False(t, rec.snaps[0].StartedAt.IsZero())
	}
}

func TestSignalingErrorCompletesAsFailed(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindAccepted))
	m.Apply(NewEvent(EventKindError).WithError(errors.New("media relay lost")))

	assert.Equal(t, PhaseIdle, m.Phase())
	if assert.Len(t, rec.statuses, 1) {
		assert.Equal(t, CallStatusFailed, rec.statuses[0])
	}
}

func TestErrorBeforeConnectProducesNoLog(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindError).WithError(errors.New("registration dropped")))

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Empty(t, rec.statuses)
}

func TestIncomingFlow(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.Apply(NewEvent(EventKindIncoming).WithNumber("+49301234567").WithCallID("CA77"))
	assert.Equal(t, PhaseIncoming, m.Phase())
	assert.Equal(t, CallDirectionInbound, m.Snapshot().Direction)

	assert.True(t, m.Answer())
	assert.Equal(t, PhaseConnected, m.Phase())

	m.Apply(NewEvent(EventKindDisconnected))
	if assert.Len(t, rec.statuses, 1) {
		assert.Equal(t, CallStatusCompleted, rec.statuses[0])
		assert.Equal(t, CallDirectionInbound, rec.snaps[0].Direction)
	}
}

func TestDeclineIncoming(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.Apply(NewEvent(EventKindIncoming).WithNumber("+49301234567"))
	assert.True(t, m.Decline())
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Empty(t, rec.statuses)
}

func TestAnswerDeclineOutsidePhaseAreNoOps(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	// These race the remote side hanging up first; they must not panic or
	// change phase, only surface a status line.
	assert.False(t, m.Answer())
	assert.False(t, m.Decline())
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.NotEmpty(t, m.StatusMessage())
}

func TestIncomingIgnoredWhileBusy(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindIncoming).WithNumber("+49301234567"))

	assert.Equal(t, PhaseRinging, m.Phase())
	assert.Equal(t, "+14155550123", m.Snapshot().Number)
}

func TestForceIdle(t *testing.T) {
	rec := &completionRecorder{}
	m := NewMachine(rec.record)

	m.BeginOutbound("+14155550123")
	m.Apply(NewEvent(EventKindAccepted))
	m.ForceIdle(CallStatusCompleted)

	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Len(t, rec.statuses, 1)

	// Repeated force while idle is harmless.
	m.ForceIdle(CallStatusCompleted)
	assert.Len(t, rec.statuses, 1)

	// A late disconnect event for the already-forced call is ignored.
	m.Apply(NewEvent(EventKindDisconnected))
	assert.Len(t, rec.statuses, 1)
}

func TestPhaseString(t *testing.T) {
	testCases := []struct {
		phase    Phase
		expected string
	}{
		{PhaseIdle, "idle"},
		{PhaseRinging, "ringing"},
		{PhaseIncoming, "incoming"},
		{PhaseConnected, "connected"},
		{Phase(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.phase.String())
		})
	}
}
