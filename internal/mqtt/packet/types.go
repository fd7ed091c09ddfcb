package packet

import "fmt"

// Protocol constants for MQTT 3.1.1.
const (
	// ProtocolName is the protocol name carried in every CONNECT.
	ProtocolName = "MQTT"

	// ProtocolLevel identifies MQTT 3.1.1 in the CONNECT variable header.
	ProtocolLevel byte = 4

	// MaxRemainingLength is the largest value a 4-byte remaining length can hold.
	MaxRemainingLength = 268435455

	// maxVarIntBytes is the maximum size of the remaining length field.
	maxVarIntBytes = 4

	// maxStringLength is the largest length prefix of an MQTT string.
	maxStringLength = 65535
)

// Type is the control packet type carried in the upper 4 bits of the fixed header.
type Type byte

// Control packet types. 0 and 15 are reserved in MQTT 3.1.1.
const (
	TypeConnect     Type = 1
	TypeConnack     Type = 2
	TypePublish     Type = 3
	TypePuback      Type = 4
	TypePubrec      Type = 5
	TypePubrel      Type = 6
	TypePubcomp     Type = 7
	TypeSubscribe   Type = 8
	TypeSuback      Type = 9
	TypeUnsubscribe Type = 10
	TypeUnsuback    Type = 11
	TypePingreq     Type = 12
	TypePingresp    Type = 13
	TypeDisconnect  Type = 14
)

// String returns the packet type name as written in the MQTT specification.
func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnack:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypePuback:
		return "PUBACK"
	case TypePubrec:
		return "PUBREC"
	case TypePubrel:
		return "PUBREL"
	case TypePubcomp:
		return "PUBCOMP"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSuback:
		return "SUBACK"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsuback:
		return "UNSUBACK"
	case TypePingreq:
		return "PINGREQ"
	case TypePingresp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("RESERVED(%d)", byte(t))
	}
}

// QoS is the delivery guarantee of a message.
type QoS byte

// Quality of Service levels.
const (
	// QoS0 is at most once delivery (fire and forget).
	QoS0 QoS = 0

	// QoS1 is at least once delivery (PUBACK).
	QoS1 QoS = 1

	// QoS2 is exactly once delivery (PUBREC, PUBREL, PUBCOMP).
	QoS2 QoS = 2
)

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// ReturnCode is the CONNACK connect return code.
type ReturnCode byte

// CONNACK return codes.
const (
	Accepted                   ReturnCode = 0
	RefusedProtocolVersion     ReturnCode = 1
	RefusedIdentifierRejected  ReturnCode = 2
	RefusedServerUnavailable   ReturnCode = 3
	RefusedBadUsernamePassword ReturnCode = 4
	RefusedNotAuthorized       ReturnCode = 5
)

// String returns a human-readable description of the return code.
func (c ReturnCode) String() string {
	switch c {
	case Accepted:
		return "connection accepted"
	case RefusedProtocolVersion:
		return "unacceptable protocol version"
	case RefusedIdentifierRejected:
		return "identifier rejected"
	case RefusedServerUnavailable:
		return "server unavailable"
	case RefusedBadUsernamePassword:
		return "bad user name or password"
	case RefusedNotAuthorized:
		return "not authorized"
	default:
		return fmt.Sprintf("unknown return code %d", byte(c))
	}
}

// SubackFailure is the SUBACK return code for a rejected subscription.
const SubackFailure byte = 0x80

// Packet is an MQTT control packet that can be framed by Encode.
type Packet interface {
	// Type returns the control packet type.
	Type() Type

	// flags returns the lower 4 bits of the fixed header.
	flags() byte

	// validate reports why the packet cannot be encoded, or nil.
	validate() error

	// remainingLength is the size of the variable header plus payload.
	remainingLength() int

	// encodeBody writes the variable header and payload into dst,
	// which is exactly remainingLength bytes long.
	encodeBody(dst []byte)
}
