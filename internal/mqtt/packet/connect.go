package packet

import (
	"fmt"
	"unicode/utf8"
)

// CONNECT flag bits.
const (
	connectFlagReserved     byte = 0x01
	connectFlagCleanSession byte = 0x02
	connectFlagWill         byte = 0x04
	connectFlagWillQoSShift      = 3
	connectFlagWillRetain   byte = 0x20
	connectFlagPassword     byte = 0x40
	connectFlagUsername     byte = 0x80
)

// connectVariableHeaderSize is protocol name(2+4) + level(1) + flags(1) + keep alive(2).
const connectVariableHeaderSize = 2 + len(ProtocolName) + 1 + 1 + 2

// Will is the Last Will and Testament the broker publishes if the client
// disappears without sending DISCONNECT.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Connect is the first packet a client sends on a new network connection.
type Connect struct {
	ClientID     string
	KeepAlive    uint16 // seconds, 0 disables keep-alive
	CleanSession bool
	Username     string
	Password     []byte
	Will         *Will
}

// Type implements Packet.
func (*Connect) Type() Type { return TypeConnect }

func (*Connect) flags() byte { return 0 }

func (c *Connect) validate() error {
	if len(c.ClientID) > maxStringLength || !utf8.ValidString(c.ClientID) {
		return fmt.Errorf("%w: client identifier", ErrInvalidPacket)
	}
	if c.ClientID == "" && !c.CleanSession {
		return fmt.Errorf("%w: empty client identifier requires a clean session", ErrInvalidPacket)
	}
	if c.Will != nil {
		if c.Will.Topic == "" || len(c.Will.Topic) > maxStringLength {
			return fmt.Errorf("%w: will topic", ErrInvalidPacket)
		}
		if len(c.Will.Payload) > maxStringLength {
			return fmt.Errorf("%w: will payload exceeds %d bytes", ErrInvalidPacket, maxStringLength)
		}
		if !c.Will.QoS.Valid() {
			return fmt.Errorf("%w: will QoS %d", ErrInvalidPacket, c.Will.QoS)
		}
	}
	if len(c.Username) > maxStringLength || len(c.Password) > maxStringLength {
		return fmt.Errorf("%w: credentials too long", ErrInvalidPacket)
	}
	if c.Username == "" && len(c.Password) > 0 {
		return fmt.Errorf("%w: password without user name", ErrInvalidPacket)
	}
	return nil
}

func (c *Connect) remainingLength() int {
	n := connectVariableHeaderSize + 2 + len(c.ClientID)
	if c.Will != nil {
		n += 2 + len(c.Will.Topic) + 2 + len(c.Will.Payload)
	}
	if c.Username != "" {
		n += 2 + len(c.Username)
	}
	if len(c.Password) > 0 {
		n += 2 + len(c.Password)
	}
	return n
}

func (c *Connect) connectFlags() byte {
	var f byte
	if c.CleanSession {
		f |= connectFlagCleanSession
	}
	if c.Will != nil {
		f |= connectFlagWill
		f |= byte(c.Will.QoS) << connectFlagWillQoSShift
		if c.Will.Retain {
			f |= connectFlagWillRetain
		}
	}
	if c.Username != "" {
		f |= connectFlagUsername
	}
	if len(c.Password) > 0 {
		f |= connectFlagPassword
	}
	return f
}

func (c *Connect) encodeBody(dst []byte) {
	i := putString(dst, ProtocolName)
	dst[i] = ProtocolLevel
	dst[i+1] = c.connectFlags()
	i += 2
	i += putUint16(dst[i:], c.KeepAlive)
	i += putString(dst[i:], c.ClientID)
	if c.Will != nil {
		i += putString(dst[i:], c.Will.Topic)
		i += putBytes(dst[i:], c.Will.Payload)
	}
	if c.Username != "" {
		i += putString(dst[i:], c.Username)
	}
	if len(c.Password) > 0 {
		putBytes(dst[i:], c.Password)
	}
}

// decodeConnect parses a CONNECT body. Clients never receive CONNECT from a
// broker; the decoder exists so frames can be verified end to end.
func decodeConnect(body []byte) (*Connect, error) {
	name, off, err := readBytes(body, 0)
	if err != nil {
		return nil, err
	}
	if string(name) != ProtocolName {
		return nil, fmt.Errorf("%w: protocol name %q", ErrMalformed, name)
	}
	if off+2 > len(body) {
		return nil, fmt.Errorf("%w: truncated CONNECT header", ErrMalformed)
	}
	if body[off] != ProtocolLevel {
		return nil, fmt.Errorf("%w: protocol level %d", ErrMalformed, body[off])
	}
	flags := body[off+1]
	off += 2
	if flags&connectFlagReserved != 0 {
		return nil, fmt.Errorf("%w: reserved CONNECT flag set", ErrMalformed)
	}

	c := &Connect{CleanSession: flags&connectFlagCleanSession != 0}
	if c.KeepAlive, off, err = readUint16(body, off); err != nil {
		return nil, err
	}

	id, off, err := readBytes(body, off)
	if err != nil {
		return nil, err
	}
	c.ClientID = string(id)

	willQoS := QoS((flags >> connectFlagWillQoSShift) & 0x03)
	if flags&connectFlagWill != 0 {
		if !willQoS.Valid() {
			return nil, fmt.Errorf("%w: will QoS 3", ErrMalformed)
		}
		topic, next, err := readBytes(body, off)
		if err != nil {
			return nil, err
		}
		payload, next, err := readBytes(body, next)
		if err != nil {
			return nil, err
		}
		off = next
		c.Will = &Will{
			Topic:   string(topic),
			Payload: payload,
			QoS:     willQoS,
			Retain:  flags&connectFlagWillRetain != 0,
		}
	} else if willQoS != QoS0 || flags&connectFlagWillRetain != 0 {
		return nil, fmt.Errorf("%w: will flags without will", ErrMalformed)
	}

	if flags&connectFlagUsername != 0 {
		user, next, err := readBytes(body, off)
		if err != nil {
			return nil, err
		}
		c.Username = string(user)
		off = next
	} else if flags&connectFlagPassword != 0 {
		return nil, fmt.Errorf("%w: password flag without user name", ErrMalformed)
	}
	if flags&connectFlagPassword != 0 {
		pass, next, err := readBytes(body, off)
		if err != nil {
			return nil, err
		}
		c.Password = pass
		off = next
	}

	if off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes after CONNECT", ErrMalformed, len(body)-off)
	}
	return c, nil
}
