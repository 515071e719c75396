package callsession

import "time"

// EventKind represents the type of signaling event
type EventKind string

const (
	EventKindIncoming     EventKind = "incoming"     // Remote call offered
	EventKindAccepted     EventKind = "accepted"     // Remote side accepted our call
	EventKindCancelled    EventKind = "cancelled"    // Remote side cancelled before answer
	EventKindDisconnected EventKind = "disconnected" // Established call ended
	EventKindError        EventKind = "error"        // Signaling failure on the connection
)

// Event is one signaling occurrence translated from the provider SDK into
// a value the machine can consume. Translation keeps the transition logic
// pure and testable without live signaling I/O.
type Event struct {
	Kind           EventKind
	ProviderCallID string
	Number         string // remote number, set on incoming
	Err            error  // set for EventKindError
	At             time.Time
}

// NewEvent creates an event stamped with the current time.
func NewEvent(kind EventKind) Event {
	return Event{Kind: kind, At: time.Now()}
}

// WithCallID sets the provider call id on the event.
func (e Event) WithCallID(id string) Event {
	e.ProviderCallID = id
	return e
}

// WithNumber sets the remote number on the event.
func (e Event) WithNumber(number string) Event {
	e.Number = number
	return e
}

// WithError sets the signaling error on the event.
func (e Event) WithError(err error) Event {
	e.Err = err
	return e
}
