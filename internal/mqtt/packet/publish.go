package packet

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// PUBLISH fixed header flag bits.
const (
	publishFlagRetain   byte = 0x01
	publishFlagQoSShift      = 1
	publishFlagDup      byte = 0x08
)

// Publish carries an application message in either direction.
//
// Decoded Topic and Payload alias the source bytes passed to Decode.
type Publish struct {
	Dup      bool
	QoS      QoS
	Retain   bool
	Topic    []byte
	PacketID uint16 // zero at QoS 0
	Payload  []byte
}

// Type implements Packet.
func (*Publish) Type() Type { return TypePublish }

func (p *Publish) flags() byte {
	f := byte(p.QoS) << publishFlagQoSShift
	if p.Dup {
		f |= publishFlagDup
	}
	if p.Retain {
		f |= publishFlagRetain
	}
	return f
}

func (p *Publish) validate() error {
	if !p.QoS.Valid() {
		return fmt.Errorf("%w: QoS %d", ErrInvalidPacket, p.QoS)
	}
	if err := ValidateTopicName(p.Topic); err != nil {
		return err
	}
	if p.QoS == QoS0 {
		if p.Dup {
			return fmt.Errorf("%w: DUP set at QoS 0", ErrInvalidPacket)
		}
		if p.PacketID != 0 {
			return fmt.Errorf("%w: packet identifier at QoS 0", ErrInvalidPacket)
		}
	} else if p.PacketID == 0 {
		return fmt.Errorf("%w: QoS %d requires a packet identifier", ErrInvalidPacket, p.QoS)
	}
	return nil
}

func (p *Publish) remainingLength() int {
	n := 2 + len(p.Topic) + len(p.Payload)
	if p.QoS > QoS0 {
		n += 2
	}
	return n
}

func (p *Publish) encodeBody(dst []byte) {
	i := putBytes(dst, p.Topic)
	if p.QoS > QoS0 {
		i += putUint16(dst[i:], p.PacketID)
	}
	copy(dst[i:], p.Payload)
}

// ValidateTopicName checks a topic a client may publish to: non-empty
// UTF-8 without wildcards or NUL, at most 65535 bytes.
func ValidateTopicName(topic []byte) error {
	switch {
	case len(topic) == 0:
		return fmt.Errorf("%w: empty topic", ErrInvalidPacket)
	case len(topic) > maxStringLength:
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidPacket, maxStringLength)
	case !utf8.Valid(topic):
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidPacket)
	case bytes.ContainsAny(topic, "+#\x00"):
		return fmt.Errorf("%w: topic %q contains wildcard or NUL", ErrInvalidPacket, topic)
	}
	return nil
}

// PublishOverhead returns an upper bound on the bytes a PUBLISH to topic
// adds around its payload: fixed header with the widest remaining length,
// topic string and, above QoS 0, the packet identifier.
//
// A payload of at most capacity-PublishOverhead always encodes into an
// empty buffer of that capacity.
func PublishOverhead(topic string, qos QoS) int {
	n := 1 + maxVarIntBytes + 2 + len(topic)
	if qos > QoS0 {
		n += 2
	}
	return n
}

func decodePublish(flags byte, body []byte) (*Publish, error) {
	p := &Publish{
		Dup:    flags&publishFlagDup != 0,
		QoS:    QoS((flags >> publishFlagQoSShift) & 0x03),
		Retain: flags&publishFlagRetain != 0,
	}
	if !p.QoS.Valid() {
		return nil, fmt.Errorf("%w: PUBLISH QoS 3", ErrMalformed)
	}
	if p.QoS == QoS0 && p.Dup {
		return nil, fmt.Errorf("%w: PUBLISH DUP set at QoS 0", ErrMalformed)
	}

	topic, off, err := readBytes(body, 0)
	if err != nil {
		return nil, err
	}
	if len(topic) == 0 || !utf8.Valid(topic) || bytes.ContainsAny(topic, "+#\x00") {
		return nil, fmt.Errorf("%w: PUBLISH topic %q", ErrMalformed, topic)
	}
	p.Topic = topic

	if p.QoS > QoS0 {
		if p.PacketID, off, err = readUint16(body, off); err != nil {
			return nil, err
		}
		if p.PacketID == 0 {
			return nil, fmt.Errorf("%w: PUBLISH packet identifier 0", ErrMalformed)
		}
	}
	p.Payload = body[off:len(body):len(body)]
	return p, nil
}
