package session

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
)

// Domain errors for the session package.
var (
	// ErrNotConnected is returned by operations that need a Connected
	// session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrAlreadyConnected is returned when Connect is called on a session
	// that is connecting or connected.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrHandshakeTimeout is returned when no CONNACK arrives within the
	// connect timeout.
	ErrHandshakeTimeout = errors.New("session: timed out waiting for CONNACK")

	// ErrHandshakeRejected is wrapped by ConnackError when the broker
	// refuses the connection.
	ErrHandshakeRejected = errors.New("session: connection rejected by broker")

	// ErrTransport wraps any transport failure. It is always fatal.
	ErrTransport = errors.New("session: transport failure")

	// ErrConnectionClosed is returned when the broker closes the stream.
	ErrConnectionClosed = errors.New("session: connection closed by broker")

	// ErrProtocolViolation is returned when the inbound stream is
	// malformed or carries a packet the client must never receive.
	ErrProtocolViolation = errors.New("session: protocol violation")

	// ErrPingTimeout is returned when PINGRESP does not arrive in time.
	ErrPingTimeout = errors.New("session: keep-alive ping unanswered")

	// ErrInflightFull is returned when the pending request table is full.
	ErrInflightFull = errors.New("session: too many requests in flight")

	// ErrNoPacketID is returned when no free packet identifier was found.
	ErrNoPacketID = errors.New("session: no free packet identifier")

	// ErrInvalidTopic is returned for a topic or filter that cannot be sent.
	ErrInvalidTopic = errors.New("session: invalid topic")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("session: invalid QoS")
)

// ConnackError reports a CONNACK with a non-zero return code.
type ConnackError struct {
	Code packet.ReturnCode
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", ErrHandshakeRejected, e.Code, byte(e.Code))
}

// Unwrap lets errors.Is match ErrHandshakeRejected.
func (e *ConnackError) Unwrap() error {
	return ErrHandshakeRejected
}
