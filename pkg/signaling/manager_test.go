package signaling

import (
	"context"
	"errors"
	"testing"

	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) GetToken(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeDevice struct {
	registrations int
	registerErr   error
	connectErr    error
	connected     []string
	accepted      int
	rejected      int
	disconnects   int
	closed        bool
	events        chan callsession.Event
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{events: make(chan callsession.Event, 16)}
}

func (f *fakeDevice) Register(ctx context.Context, token string) error {
	f.registrations++
	return f.registerErr
}

func (f *fakeDevice) Connect(ctx context.Context, number string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = append(f.connected, number)
	return nil
}

func (f *fakeDevice) Accept(ctx context.Context) error  { f.accepted++; return nil }
func (f *fakeDevice) Reject(ctx context.Context) error  { f.rejected++; return nil }
func (f *fakeDevice) Disconnect() error                 { f.disconnects++; return nil }
func (f *fakeDevice) Events() <-chan callsession.Event  { return f.events }
func (f *fakeDevice) Close() error                      { f.closed = true; return nil }

func newTestManager(t *testing.T) (*Manager, *fakeDevice, *fakeTokens, *callsession.Machine) {
	t.Helper()
	device := newFakeDevice()
	tokens := &fakeTokens{token: "tok-1"}
	machine := callsession.NewMachine(nil)
	mgr := NewManager(tokens, func() Device { return device }, machine)
	return mgr, device, tokens, machine
}

func TestPlaceCallNumberValidation(t *testing.T) {
	testCases := []struct {
		number string
		valid  bool
	}{
		{"+14155550123", true},
		{"+442071838750", true},
		{"+8613912345678", true},
		{"+12345678", true},             // minimum length
		{"+123456789012345", true},      // maximum length
		{"14155550123", false},          // missing plus
		{"+04155550123", false},         // leading zero
		{"+1415555", false},             // too short
		{"+1234567890123456", false},    // too long
		{"+1 415 555 0123", false},      // not normalized
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.number, func(t *testing.T) {
			mgr, device, _, machine := newTestManager(t)
			err := mgr.PlaceCall(context.Background(), tc.number)
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, []string{tc.number}, device.connected)
				assert.Equal(t, callsession.PhaseRinging, machine.Phase())
			} else {
				var invalid *InvalidNumberError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tc.number, invalid.Number)
				assert.Equal(t, callsession.PhaseIdle, machine.Phase(),
					"invalid number must not change phase")
			}
		})
	}
}

func TestEnsureReadyIdempotent(t *testing.T) {
	mgr, device, tokens, _ := newTestManager(t)

	first, err := mgr.EnsureReady(context.Background())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := mgr.EnsureReady(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, again)
	}

	assert.Equal(t, 1, device.registrations, "ready device must not re-register")
	assert.Equal(t, 1, tokens.calls, "ready device must not re-fetch tokens")
}

func TestEnsureReadyNotConfigured(t *testing.T) {
	mgr, _, tokens, machine := newTestManager(t)
	tokens.err = ErrNotConfigured

	_, err := mgr.EnsureReady(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, machine.StatusMessage(), "not configured")

	// Outbound calling stays disabled with the same distinguishable error.
	err = mgr.PlaceCall(context.Background(), "+14155550123")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, callsession.PhaseIdle, machine.Phase())
}

func TestEnsureReadyRegistrationFailure(t *testing.T) {
	device := newFakeDevice()
	device.registerErr = errors.New("gateway 503")
	tokens := &fakeTokens{token: "tok-1"}
	machine := callsession.NewMachine(nil)
	mgr := NewManager(tokens, func() Device { return device }, machine)

	_, err := mgr.EnsureReady(context.Background())
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.True(t, device.closed, "failed device must be released")
}

func TestPlaceCallWhileBusyIsNoOp(t *testing.T) {
	mgr, device, _, machine := newTestManager(t)

	require.NoError(t, mgr.PlaceCall(context.Background(), "+14155550123"))
	require.NoError(t, mgr.PlaceCall(context.Background(), "+14155550999"))

	assert.Equal(t, []string{"+14155550123"}, device.connected)
	assert.Equal(t, "+14155550123", machine.Snapshot().Number)
	assert.Contains(t, machine.StatusMessage(), "in progress")
}

func TestPlaceCallConnectFailureReturnsToIdle(t *testing.T) {
	mgr, device, _, machine := newTestManager(t)
	device.connectErr = errors.New("gateway unreachable")

	err := mgr.PlaceCall(context.Background(), "+14155550123")
	var sigErr *SignalingError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, callsession.PhaseIdle, machine.Phase())
}

func TestAnswerAndDeclineOutsideIncoming(t *testing.T) {
	mgr, device, _, machine := newTestManager(t)

	require.NoError(t, mgr.AnswerIncoming(context.Background()))
	require.NoError(t, mgr.DeclineIncoming(context.Background()))

	assert.Zero(t, device.accepted)
	assert.Zero(t, device.rejected)
	assert.Equal(t, callsession.PhaseIdle, machine.Phase())
}

func TestAnswerIncoming(t *testing.T) {
	mgr, device, _, machine := newTestManager(t)

	_, err := mgr.EnsureReady(context.Background())
	require.NoError(t, err)
	machine.Apply(callsession.NewEvent(callsession.EventKindIncoming).
		WithNumber("+49301234567").WithCallID("CA9"))

	require.NoError(t, mgr.AnswerIncoming(context.Background()))
	assert.Equal(t, 1, device.accepted)
	assert.Equal(t, callsession.PhaseConnected, machine.Phase())
}

func TestHangUpForcesIdleWithoutDisconnectEvent(t *testing.T) {
	completions := 0
	machine := callsession.NewMachine(func(callsession.Snapshot, callsession.CallStatus) {
		completions++
	})
	device := newFakeDevice()
	mgr := NewManager(&fakeTokens{token: "tok"}, func() Device { return device }, machine)

	require.NoError(t, mgr.PlaceCall(context.Background(), "+14155550123"))
	machine.Apply(callsession.NewEvent(callsession.EventKindAccepted).WithCallID("CA1"))

	// The device never emits a disconnected event; the surface must not
	// get stuck anyway.
	mgr.HangUp()
	assert.Equal(t, 1, device.disconnects)
	assert.Equal(t, callsession.PhaseIdle, machine.Phase())
	assert.Equal(t, 1, completions)
}

func TestTeardownBestEffort(t *testing.T) {
	mgr, device, _, _ := newTestManager(t)

	_, err := mgr.EnsureReady(context.Background())
	require.NoError(t, err)

	mgr.Teardown()
	assert.Equal(t, 1, device.disconnects)
	assert.True(t, device.closed)

	// Teardown twice must be harmless.
	mgr.Teardown()
	assert.Equal(t, 1, device.disconnects)
}
