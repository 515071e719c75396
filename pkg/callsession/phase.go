// Package callsession holds the call phase state machine driving the
// operator console call surface. Signaling callbacks are translated into
// typed events and applied to the machine; the machine is the single
// source of truth for what the surface may do next.
package callsession

// Phase represents the current state of one call attempt.
type Phase int

const (
	// PhaseIdle means no call attempt is in progress.
	PhaseIdle Phase = iota
	// PhaseRinging means an outbound call was placed and is awaiting the remote side.
	PhaseRinging
	// PhaseIncoming means a remote call is waiting for the operator to answer.
	PhaseIncoming
	// PhaseConnected means media is flowing on an accepted call.
	PhaseConnected
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRinging:
		return "ringing"
	case PhaseIncoming:
		return "incoming"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// CallStatus 通话结束状态（写入通话记录）
type CallStatus string

const (
	CallStatusCompleted CallStatus = "completed" // 正常结束
	CallStatusFailed    CallStatus = "failed"    // 信令错误
	CallStatusMissed    CallStatus = "missed"    // 未接
	CallStatusCancelled CallStatus = "cancelled" // 接通前取消
)

// CallDirection 通话方向
type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"  // 呼入
	CallDirectionOutbound CallDirection = "outbound" // 呼出
)
