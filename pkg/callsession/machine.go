package callsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	"go.uber.org/zap"
)

// Snapshot 会话状态快照（用于终态回调与界面展示）
type Snapshot struct {
	Phase          Phase
	Number         string
	ProviderCallID string
	Direction      CallDirection
	StartedAt      time.Time // zero until the call is accepted
}

// CompletionFunc is invoked once per terminal transition, after the machine
// has already returned to idle. The snapshot carries the state the session
// had at the moment it ended.
type CompletionFunc func(snap Snapshot, status CallStatus)

// Machine 通话阶段状态机 - 封装所有阶段相关的操作
//
// At most one non-idle session exists at a time; transitions arriving for
// a phase they do not apply to are ignored rather than raised, because
// signaling events can legitimately race the operator's own actions.
type Machine struct {
	mu             sync.RWMutex
	phase          Phase
	number         string
	providerCallID string
	direction      CallDirection
	startedAt      time.Time
	statusMsg      string
	onComplete     CompletionFunc
}

// NewMachine 创建新的通话阶段状态机
func NewMachine(onComplete CompletionFunc) *Machine {
	return &Machine{
		phase:      PhaseIdle,
		statusMsg:  "Ready",
		onComplete: onComplete,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:          m.phase,
		Number:         m.number,
		ProviderCallID: m.providerCallID,
		Direction:      m.direction,
		StartedAt:      m.startedAt,
	}
}

// StatusMessage returns the single current status line. The most recent
// message always supersedes; nothing is queued.
func (m *Machine) StatusMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusMsg
}

// SetStatusMessage replaces the current status line. It is a UX affordance
// only and never participates in transition decisions.
func (m *Machine) SetStatusMessage(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusMsg = msg
}

// setPhaseLocked updates the phase and mirrors it to the phase gauge.
func (m *Machine) setPhaseLocked(p Phase) {
	m.phase = p
	metrics.CallPhase.Set(float64(p))
}

// setStatusLocked composes a status line, shielding transitions from any
// panic in formatting.
func (m *Machine) setStatusLocked(format string, args ...interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("status message formatting failed", zap.Any("recover", r))
		}
	}()
	m.statusMsg = fmt.Sprintf(format, args...)
}

// BeginOutbound moves idle → ringing for a freshly placed call. Returns
// false without side effects if another session is already in progress.
func (m *Machine) BeginOutbound(number string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIdle {
		m.setStatusLocked("Another call is already in progress")
		return false
	}

	m.setPhaseLocked(PhaseRinging)
	m.number = number
	m.direction = CallDirectionOutbound
	m.providerCallID = ""
	m.startedAt = time.Time{}
	m.setStatusLocked("Calling %s...", number)
	return true
}

// Answer moves incoming → connected and records the start time. Valid only
// while a call is offered; otherwise it is a no-op surfaced as a status
// message, since the remote side may have hung up a moment earlier.
func (m *Machine) Answer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIncoming {
		m.setStatusLocked("No incoming call to answer")
		return false
	}

	m.setPhaseLocked(PhaseConnected)
	m.startedAt = time.Now()
	m.setStatusLocked("On call with %s", m.number)
	return true
}

// Decline rejects an offered call and returns to idle. No call log is
// written for calls that were never connected.
func (m *Machine) Decline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIncoming {
		m.setStatusLocked("No incoming call to decline")
		return false
	}

	m.resetLocked()
	m.setStatusLocked("Call declined")
	return true
}

// ForceIdle drives the session back to idle regardless of pending signaling
// events, so the surface never sticks waiting for a disconnect that was
// dropped. A connected session is completed with the given status; a session
// that never connected is discarded without a log entry.
func (m *Machine) ForceIdle(status CallStatus) {
	m.mu.Lock()
	if m.phase == PhaseIdle {
		m.mu.Unlock()
		return
	}

	connected := !m.startedAt.IsZero()
	snap := m.snapshotLocked()
	m.resetLocked()
	if connected {
		m.setStatusLocked("Call ended")
	} else {
		m.setStatusLocked("Call cancelled")
	}
	m.mu.Unlock()

	if connected {
		m.complete(snap, status)
	}
}

// Apply consumes one signaling event and performs the corresponding
// transition. Events are applied in delivery order; the only out-of-order
// tolerance is the accept-before-cancel rule, resolved by checking the
// recorded start time rather than event order.
func (m *Machine) Apply(ev Event) {
	m.mu.Lock()

	switch ev.Kind {
	case EventKindIncoming:
		if m.phase != PhaseIdle {
			// Busy; the offer is left for the provider to time out.
			phase := m.phase
			m.mu.Unlock()
			logger.Info("incoming call ignored while busy",
				zap.String("number", ev.Number),
				zap.String("phase", phase.String()))
			return
		}
		m.setPhaseLocked(PhaseIncoming)
		m.number = ev.Number
		m.direction = CallDirectionInbound
		m.providerCallID = ev.ProviderCallID
		m.startedAt = time.Time{}
		m.setStatusLocked("Incoming call from %s", ev.Number)
		m.mu.Unlock()

	case EventKindAccepted:
		if m.phase != PhaseRinging {
			m.mu.Unlock()
			return
		}
		m.setPhaseLocked(PhaseConnected)
		m.startedAt = time.Now()
		if ev.ProviderCallID != "" {
			m.providerCallID = ev.ProviderCallID
		}
		m.setStatusLocked("On call with %s", m.number)
		m.mu.Unlock()

	case EventKindCancelled:
		// A cancel that trails a slightly earlier accept is ignored: the
		// recorded start time takes precedence.
		if !m.startedAt.IsZero() || m.phase == PhaseIdle {
			m.mu.Unlock()
			return
		}
		m.resetLocked()
		m.setStatusLocked("Call cancelled")
		m.mu.Unlock()

	case EventKindDisconnected:
		m.terminalLocked(CallStatusCompleted, "Call ended")

	case EventKindError:
		if ev.Err != nil {
			logger.Error("signaling error", zap.Error(ev.Err))
		}
		m.terminalLocked(CallStatusFailed, "Call failed")

	default:
		m.mu.Unlock()
		logger.Warn("unknown signaling event", zap.String("kind", string(ev.Kind)))
	}
}

// terminalLocked finishes the session for disconnect/error events. The lock
// is held on entry and released before the completion callback runs.
func (m *Machine) terminalLocked(status CallStatus, statusLine string) {
	if m.phase == PhaseIdle {
		m.mu.Unlock()
		return
	}

	connected := !m.startedAt.IsZero()
	snap := m.snapshotLocked()
	m.resetLocked()
	m.setStatusLocked("%s", statusLine)
	m.mu.Unlock()

	if connected {
		m.complete(snap, status)
	}
}

// resetLocked clears the session back to idle. The start time is cleared
// exactly here, so it is non-zero if and only if the phase left connected
// through a completion.
func (m *Machine) resetLocked() {
	m.setPhaseLocked(PhaseIdle)
	m.number = ""
	m.providerCallID = ""
	m.direction = ""
	m.startedAt = time.Time{}
}

func (m *Machine) complete(snap Snapshot, status CallStatus) {
	if m.onComplete == nil {
		return
	}
	m.onComplete(snap, status)
}
