package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/EchoDesk/pkg/callsession"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	registerTimeout = 10 * time.Second
	writeTimeout    = 5 * time.Second
)

// gatewayMessage 信令网关 JSON 帧
type gatewayMessage struct {
	Type   string `json:"type"`
	Token  string `json:"token,omitempty"`
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	CallID string `json:"callId,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WSDevice speaks the provider gateway's JSON-over-websocket signaling
// protocol and translates its frames into callsession events.
type WSDevice struct {
	url    string
	mu     sync.Mutex
	conn   *websocket.Conn
	events chan callsession.Event
	closed bool
}

// NewWSDevice creates an unregistered device for the given gateway URL.
func NewWSDevice(url string) *WSDevice {
	return &WSDevice{
		url:    url,
		events: make(chan callsession.Event, 16),
	}
}

// Register dials the gateway and authenticates with the backend-issued
// token. On success a reader goroutine starts feeding Events.
func (d *WSDevice) Register(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &RegistrationError{Err: fmt.Errorf("device already closed")}
	}
	if d.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, d.url, nil)
	if err != nil {
		return &RegistrationError{Err: fmt.Errorf("dial gateway: %w", err)}
	}

	if err := writeMessage(conn, gatewayMessage{Type: "register", Token: token}); err != nil {
		conn.Close()
		return &RegistrationError{Err: err}
	}

	// The gateway acknowledges registration before any call traffic.
	conn.SetReadDeadline(time.Now().Add(registerTimeout))
	var ack gatewayMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return &RegistrationError{Err: fmt.Errorf("read register ack: %w", err)}
	}
	conn.SetReadDeadline(time.Time{})

	switch ack.Type {
	case "registered":
	case "error":
		conn.Close()
		if ack.Code == "not_configured" {
			return ErrNotConfigured
		}
		return &RegistrationError{Err: fmt.Errorf("gateway rejected registration: %s", ack.Error)}
	default:
		conn.Close()
		return &RegistrationError{Err: fmt.Errorf("unexpected register response %q", ack.Type)}
	}

	d.conn = conn
	go d.readLoop(conn)
	return nil
}

// readLoop translates gateway frames into typed events until the
// connection drops or the device is closed.
func (d *WSDevice) readLoop(conn *websocket.Conn) {
	for {
		var msg gatewayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if !closed {
				logger.Warn("signaling gateway connection lost", zap.Error(err))
				d.emit(callsession.NewEvent(callsession.EventKindError).
					WithError(&SignalingError{Err: err}))
			}
			return
		}

		switch msg.Type {
		case "incoming":
			d.emit(callsession.NewEvent(callsession.EventKindIncoming).
				WithNumber(msg.From).WithCallID(msg.CallID))
		case "accepted":
			d.emit(callsession.NewEvent(callsession.EventKindAccepted).
				WithCallID(msg.CallID))
		case "cancelled":
			d.emit(callsession.NewEvent(callsession.EventKindCancelled).
				WithCallID(msg.CallID))
		case "disconnected":
			d.emit(callsession.NewEvent(callsession.EventKindDisconnected).
				WithCallID(msg.CallID))
		case "error":
			d.emit(callsession.NewEvent(callsession.EventKindError).
				WithError(&SignalingError{Err: fmt.Errorf("%s", msg.Error)}))
		default:
			logger.Debug("ignoring unknown gateway frame", zap.String("type", msg.Type))
		}
	}
}

func (d *WSDevice) emit(ev callsession.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		// The consumer pump is stalled; dropping is preferable to blocking
		// the gateway read loop.
		logger.Warn("dropping signaling event, consumer not keeping up",
			zap.String("kind", string(ev.Kind)))
	}
}

// Connect places an outbound call to the given number.
func (d *WSDevice) Connect(ctx context.Context, number string) error {
	return d.send(gatewayMessage{Type: "invite", To: number})
}

// Accept answers the pending incoming call.
func (d *WSDevice) Accept(ctx context.Context) error {
	return d.send(gatewayMessage{Type: "accept"})
}

// Reject declines the pending incoming call.
func (d *WSDevice) Reject(ctx context.Context) error {
	return d.send(gatewayMessage{Type: "reject"})
}

// Disconnect hangs up the active connection.
func (d *WSDevice) Disconnect() error {
	return d.send(gatewayMessage{Type: "hangup"})
}

func (d *WSDevice) send(msg gatewayMessage) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return &SignalingError{Err: fmt.Errorf("device not registered")}
	}
	if err := writeMessage(conn, msg); err != nil {
		return &SignalingError{Err: err}
	}
	return nil
}

// Events returns the translated signaling event stream.
func (d *WSDevice) Events() <-chan callsession.Event {
	return d.events
}

// Close releases the gateway connection. Safe to call repeatedly.
func (d *WSDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	close(d.events)
	if d.conn != nil {
		err := d.conn.Close()
		d.conn = nil
		return err
	}
	return nil
}

func writeMessage(conn *websocket.Conn, msg gatewayMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal gateway message: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
