package signaling

import (
	"errors"
	"fmt"
)

// ErrNotConfigured indicates that the caller's organization has no softphone
// provider credentials on the backend. Outbound calling stays disabled until
// an operator resolves the configuration; it is never retried automatically.
var ErrNotConfigured = errors.New("no softphone provider credentials configured")

// RegistrationError wraps any non-credential failure while registering the
// signaling device.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("device registration failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// InvalidNumberError indicates the dialed number is not normalized E.164.
// It blocks only the single attempted call.
type InvalidNumberError struct {
	Number string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("invalid E.164 number: %q", e.Number)
}

// SignalingError wraps a failure reported by the active connection itself.
type SignalingError struct {
	Err error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling failure: %v", e.Err)
}

func (e *SignalingError) Unwrap() error {
	return e.Err
}
