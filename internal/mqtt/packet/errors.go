package packet

import (
	"errors"
	"fmt"
)

// Codec errors. Use errors.Is() to check for these errors in calling code.
var (
	// ErrIncomplete is returned by Decode when the available bytes are a
	// prefix of a frame. It is not a failure: the caller keeps accumulating.
	ErrIncomplete = errors.New("packet: incomplete frame")

	// ErrMalformed is returned when a frame violates the MQTT 3.1.1 encoding
	// rules. The stream cannot be resynchronised; drop the connection.
	ErrMalformed = errors.New("packet: malformed frame")

	// ErrPacketTooLarge is returned when a frame declares more bytes than the
	// inbound buffer can ever hold. It wraps ErrMalformed.
	ErrPacketTooLarge = fmt.Errorf("%w: frame exceeds buffer capacity", ErrMalformed)

	// ErrBufferTooSmall is returned when an encoded packet would exceed the
	// remaining capacity of the destination buffer.
	ErrBufferTooSmall = errors.New("packet: buffer too small")

	// ErrInvalidPacket is returned when a packet value cannot be encoded
	// (empty topic, QoS out of range, missing packet identifier, ...).
	ErrInvalidPacket = errors.New("packet: invalid packet")
)
