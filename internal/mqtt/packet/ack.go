package packet

import "fmt"

// Ack is any of the two-byte acknowledgements that carry only a packet
// identifier: PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK.
type Ack struct {
	Kind     Type
	PacketID uint16
}

// Type implements Packet.
func (a *Ack) Type() Type { return a.Kind }

func (a *Ack) flags() byte {
	if a.Kind == TypePubrel {
		return 0x02
	}
	return 0
}

func (a *Ack) validate() error {
	if !isAckType(a.Kind) {
		return fmt.Errorf("%w: %s is not an acknowledgement", ErrInvalidPacket, a.Kind)
	}
	if a.PacketID == 0 {
		return fmt.Errorf("%w: %s packet identifier 0", ErrInvalidPacket, a.Kind)
	}
	return nil
}

func (*Ack) remainingLength() int { return 2 }

func (a *Ack) encodeBody(dst []byte) {
	putUint16(dst, a.PacketID)
}

func isAckType(t Type) bool {
	switch t {
	case TypePuback, TypePubrec, TypePubrel, TypePubcomp, TypeUnsuback:
		return true
	}
	return false
}

func decodeAck(t Type, body []byte) (*Ack, error) {
	if len(body) != 2 {
		return nil, fmt.Errorf("%w: %s length %d, want 2", ErrMalformed, t, len(body))
	}
	id, _, err := readUint16(body, 0)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: %s packet identifier 0", ErrMalformed, t)
	}
	return &Ack{Kind: t, PacketID: id}, nil
}
