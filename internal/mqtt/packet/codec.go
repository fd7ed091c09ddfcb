package packet

import "fmt"

// Encode frames p into the free space of buf and returns the bytes written.
//
// The exact frame size is computed before anything is written. If it
// exceeds buf.Available, Encode returns ErrBufferTooSmall and buf is left
// unchanged. Invalid packets fail with ErrInvalidPacket, also without
// touching buf.
func Encode(buf *Buffer, p Packet) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	rl := p.remainingLength()
	if rl > MaxRemainingLength {
		return 0, fmt.Errorf("%w: remaining length %d exceeds %d", ErrInvalidPacket, rl, MaxRemainingLength)
	}
	total := 1 + varIntSize(rl) + rl

	dst, err := buf.reserve(total)
	if err != nil {
		return 0, fmt.Errorf("encoding %s: %w", p.Type(), err)
	}
	dst[0] = byte(p.Type())<<4 | p.flags()
	i := 1 + putVarInt(dst[1:], rl)
	p.encodeBody(dst[i:])
	return total, nil
}

// Decode parses the first complete frame in src.
//
// It returns the packet and the number of bytes it occupied. When src holds
// only a prefix of a frame the error is ErrIncomplete and the caller should
// read more. Frames that are inconsistent yield an error wrapping
// ErrMalformed. If capacity is positive and the frame would not fit in a
// buffer of that size, Decode fails with ErrPacketTooLarge as soon as the
// remaining length is known, so the caller never waits for bytes it cannot
// hold.
//
// Byte slices in the returned packet alias src.
func Decode(src []byte, capacity int) (Packet, int, error) {
	if len(src) == 0 {
		return nil, 0, ErrIncomplete
	}
	header := src[0]
	t := Type(header >> 4)
	flags := header & 0x0F
	if t < TypeConnect || t > TypeDisconnect {
		return nil, 0, fmt.Errorf("%w: reserved packet type %d", ErrMalformed, byte(t))
	}

	rl, n, err := decodeVarInt(src[1:])
	if err != nil {
		return nil, 0, err
	}
	total := 1 + n + rl
	if capacity > 0 && total > capacity {
		return nil, 0, fmt.Errorf("%w: %s of %d bytes, capacity %d", ErrPacketTooLarge, t, total, capacity)
	}
	if len(src) < total {
		return nil, 0, ErrIncomplete
	}
	if t != TypePublish && flags != requiredFlags(t) {
		return nil, 0, fmt.Errorf("%w: %s flags 0x%X", ErrMalformed, t, flags)
	}

	body := src[1+n : total : total]
	p, err := decodeBody(t, flags, body)
	if err != nil {
		return nil, 0, err
	}
	return p, total, nil
}

func requiredFlags(t Type) byte {
	switch t {
	case TypePubrel, TypeSubscribe, TypeUnsubscribe:
		return 0x02
	}
	return 0
}

func decodeBody(t Type, flags byte, body []byte) (Packet, error) {
	switch t {
	case TypeConnect:
		return decodeConnect(body)
	case TypeConnack:
		return decodeConnack(body)
	case TypePublish:
		return decodePublish(flags, body)
	case TypePuback, TypePubrec, TypePubrel, TypePubcomp, TypeUnsuback:
		return decodeAck(t, body)
	case TypeSubscribe:
		return decodeSubscribe(body)
	case TypeSuback:
		return decodeSuback(body)
	case TypePingreq, TypePingresp, TypeDisconnect:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: %s with %d byte body", ErrMalformed, t, len(body))
		}
		switch t {
		case TypePingreq:
			return Pingreq{}, nil
		case TypePingresp:
			return Pingresp{}, nil
		default:
			return Disconnect{}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s is not supported", ErrMalformed, t)
	}
}
