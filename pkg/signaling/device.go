// Package signaling owns the softphone signaling endpoint: it registers the
// local device against the provider gateway, places and tears down calls,
// and translates provider callbacks into the typed events consumed by the
// call phase machine. Signaling protocol internals stay behind the Device
// interface; the rest of the console never talks to the provider directly.
package signaling

import (
	"context"

	"github.com/code-100-precent/EchoDesk/pkg/callsession"
)

// Device is the provider boundary for one registered signaling endpoint.
// Exactly one device exists per mounted call surface.
type Device interface {
	// Register authenticates the endpoint with a backend-issued token.
	Register(ctx context.Context, token string) error
	// Connect places an outbound call. The provider call id arrives later
	// on the accepted event, not as a return value.
	Connect(ctx context.Context, number string) error
	// Accept answers the currently offered incoming call.
	Accept(ctx context.Context) error
	// Reject declines the currently offered incoming call.
	Reject(ctx context.Context) error
	// Disconnect tears down the active connection, if any.
	Disconnect() error
	// Events delivers translated signaling events in arrival order. The
	// channel is closed when the device closes.
	Events() <-chan callsession.Event
	// Close releases the endpoint. Safe to call more than once.
	Close() error
}
