// Package event delivers session events to the application.
//
// Dispatch is synchronous: handlers run on the goroutine that called
// Session.Service and must return quickly. Nothing is queued. A panicking
// handler is recovered and logged so one bad handler cannot take down the
// polling loop.
package event

import (
	"fmt"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
)

// Kind identifies what happened.
type Kind int

// Event kinds.
const (
	// ConnectionEstablished is raised when the broker accepts CONNECT.
	ConnectionEstablished Kind = iota + 1

	// ConnectionLost is raised when a connected session drops. Err says why.
	ConnectionLost

	// MessageReceived is raised for each inbound PUBLISH delivered to the
	// application.
	MessageReceived

	// SubscriptionAcknowledged is raised when a SUBACK matches a pending
	// SUBSCRIBE.
	SubscriptionAcknowledged

	// PublishCompleted is raised when a QoS 1 or 2 publish is fully
	// acknowledged.
	PublishCompleted

	// RequestExpired is raised when a pending request saw no
	// acknowledgement in time.
	RequestExpired
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case ConnectionEstablished:
		return "connection_established"
	case ConnectionLost:
		return "connection_lost"
	case MessageReceived:
		return "message_received"
	case SubscriptionAcknowledged:
		return "subscription_acknowledged"
	case PublishCompleted:
		return "publish_completed"
	case RequestExpired:
		return "request_expired"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one notification from the session. Which fields are set depends
// on Kind.
//
// Topic, Payload and ReturnCodes are views into the session's inbound
// buffer. They are only valid until the handler returns; copy them to keep
// them.
type Event struct {
	Kind Kind

	// Err is the cause of ConnectionLost.
	Err error

	// SessionPresent is the CONNACK flag for ConnectionEstablished.
	SessionPresent bool

	// MessageReceived fields.
	Topic   []byte
	Payload []byte
	QoS     packet.QoS
	Retain  bool
	Dup     bool

	// PacketID is set for SubscriptionAcknowledged, PublishCompleted,
	// RequestExpired and QoS 1/2 MessageReceived.
	PacketID uint16

	// ReturnCodes holds the SUBACK granted QoS values (or SubackFailure).
	ReturnCodes []byte

	// Request names the expired or completed request ("subscribe",
	// "publish_qos1", "publish_qos2").
	Request string
}

// Handler receives events.
type Handler func(Event)

// Logger defines the logging interface for the dispatcher.
type Logger interface {
	Error(msg string, args ...any)
}

// Dispatcher holds the single registered handler.
type Dispatcher struct {
	handler Handler
	logger  Logger
	panics  uint64
}

// NewDispatcher creates a dispatcher with no handler registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register installs h, replacing any previous handler. A nil h drops
// events.
func (d *Dispatcher) Register(h Handler) {
	d.handler = h
}

// SetLogger sets where recovered handler panics are reported.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch runs the handler for e and recovers if it panics.
func (d *Dispatcher) Dispatch(e Event) {
	if d.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.panics++
			if d.logger != nil {
				d.logger.Error("event handler panic",
					"kind", e.Kind.String(),
					"error", fmt.Errorf("%v", r),
				)
			}
		}
	}()
	d.handler(e)
}

// Panics returns how many handler panics have been recovered.
func (d *Dispatcher) Panics() uint64 {
	return d.panics
}
