package signaling

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/metrics"
	"go.uber.org/zap"
)

// e164Pattern matches normalized E.164 numbers.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// TokenProvider issues signaling credentials from the backend. An
// organization without provider configuration must surface ErrNotConfigured.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// DeviceFactory constructs an unregistered device. Injected so tests can
// supply a fake endpoint.
type DeviceFactory func() Device

// Manager owns the signaling device for one mounted call surface: it
// registers lazily, keeps the device as an explicitly held singleton, and
// pumps its events into the phase machine.
type Manager struct {
	mu        sync.Mutex
	tokens    TokenProvider
	newDevice DeviceFactory
	machine   *callsession.Machine
	device    Device
	ready     bool
}

// NewManager 创建信令连接管理器
func NewManager(tokens TokenProvider, factory DeviceFactory, machine *callsession.Machine) *Manager {
	return &Manager{
		tokens:    tokens,
		newDevice: factory,
		machine:   machine,
	}
}

// EnsureReady lazily registers the device. Idempotent: once ready, repeated
// calls return the same device without touching the backend again.
func (m *Manager) EnsureReady(ctx context.Context) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return m.device, nil
	}

	token, err := m.tokens.GetToken(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			m.machine.SetStatusMessage("Calling is not configured for your organization")
			return nil, ErrNotConfigured
		}
		m.machine.SetStatusMessage("Could not reach the calling service")
		return nil, &RegistrationError{Err: fmt.Errorf("fetch token: %w", err)}
	}

	device := m.newDevice()
	if err := device.Register(ctx, token); err != nil {
		if cerr := device.Close(); cerr != nil {
			logger.Warn("closing unregistered device failed", zap.Error(cerr))
		}
		if errors.Is(err, ErrNotConfigured) {
			m.machine.SetStatusMessage("Calling is not configured for your organization")
			return nil, err
		}
		m.machine.SetStatusMessage("Phone registration failed")
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			return nil, err
		}
		return nil, &RegistrationError{Err: err}
	}

	m.device = device
	m.ready = true
	go m.pump(device)
	m.machine.SetStatusMessage("Ready")
	return device, nil
}

// pump applies device events to the machine in delivery order.
func (m *Manager) pump(device Device) {
	for ev := range device.Events() {
		m.machine.Apply(ev)
	}
}

// PlaceCall validates the number, makes sure the device is registered, and
// starts an outbound attempt. A call while another session is in progress
// is a no-op surfaced through the status line.
func (m *Manager) PlaceCall(ctx context.Context, number string) error {
	if !e164Pattern.MatchString(number) {
		return &InvalidNumberError{Number: number}
	}

	if m.machine.Phase() != callsession.PhaseIdle {
		m.machine.SetStatusMessage("Another call is already in progress")
		return nil
	}

	device, err := m.EnsureReady(ctx)
	if err != nil {
		return err
	}

	if !m.machine.BeginOutbound(number) {
		return nil
	}

	if err := device.Connect(ctx, number); err != nil {
		// The attempt never connected, so forcing idle writes no log entry.
		m.machine.ForceIdle(callsession.CallStatusFailed)
		m.machine.SetStatusMessage("Call could not be placed")
		return &SignalingError{Err: err}
	}

	metrics.CallsPlaced.Inc()
	return nil
}

// AnswerIncoming accepts the offered call. Outside the incoming phase it is
// a no-op with a status message, because the remote side may have hung up
// a moment earlier.
func (m *Manager) AnswerIncoming(ctx context.Context) error {
	if m.machine.Phase() != callsession.PhaseIncoming {
		m.machine.SetStatusMessage("No incoming call to answer")
		return nil
	}

	device, err := m.EnsureReady(ctx)
	if err != nil {
		return err
	}

	if err := device.Accept(ctx); err != nil {
		m.machine.SetStatusMessage("Could not answer the call")
		return &SignalingError{Err: err}
	}

	m.machine.Answer()
	metrics.CallsAnswered.Inc()
	return nil
}

// DeclineIncoming rejects the offered call; same no-op semantics as answer.
func (m *Manager) DeclineIncoming(ctx context.Context) error {
	if m.machine.Phase() != callsession.PhaseIncoming {
		m.machine.SetStatusMessage("No incoming call to decline")
		return nil
	}

	device, err := m.EnsureReady(ctx)
	if err != nil {
		return err
	}

	if err := device.Reject(ctx); err != nil {
		logger.Warn("decline signaling failed", zap.Error(err))
	}

	m.machine.Decline()
	return nil
}

// HangUp disconnects the active connection and forces the phase machine
// back to idle, so the surface never sticks waiting for a disconnect event
// that was dropped on the wire.
func (m *Manager) HangUp() {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()

	if device != nil {
		if err := device.Disconnect(); err != nil {
			logger.Warn("hangup signaling failed", zap.Error(err))
		}
	}

	m.machine.ForceIdle(callsession.CallStatusCompleted)
}

// Teardown releases the signaling resources when the surface closes:
// active connection first, then the registered device. Every step is best
// effort; a failure is logged and the remaining steps still run.
func (m *Manager) Teardown() {
	m.mu.Lock()
	device := m.device
	m.device = nil
	m.ready = false
	m.mu.Unlock()

	if device == nil {
		return
	}

	if err := device.Disconnect(); err != nil {
		logger.Warn("teardown: disconnect failed", zap.Error(err))
	}
	if err := device.Close(); err != nil {
		logger.Warn("teardown: device close failed", zap.Error(err))
	}
	m.machine.ForceIdle(callsession.CallStatusCompleted)
}
