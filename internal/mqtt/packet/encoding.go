package packet

import (
	"encoding/binary"
	"fmt"
)

// varIntSize returns the number of bytes needed to encode v as a remaining length.
func varIntSize(v int) int {
	switch {
	case v < 128:
		return 1
	case v < 16384:
		return 2
	case v < 2097152:
		return 3
	default:
		return 4
	}
}

// putVarInt writes v as a variable byte integer and returns the bytes written.
// dst must have room for varIntSize(v) bytes.
func putVarInt(dst []byte, v int) int {
	i := 0
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		dst[i] = b
		i++
		if v == 0 {
			return i
		}
	}
}

// decodeVarInt reads a remaining length from src.
//
// It returns ErrIncomplete when src ends before the terminating byte and
// ErrMalformed when the encoding runs past four bytes.
func decodeVarInt(src []byte) (value int, n int, err error) {
	multiplier := 1
	for i := 0; i < maxVarIntBytes; i++ {
		if i >= len(src) {
			return 0, 0, ErrIncomplete
		}
		b := src[i]
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		multiplier *= 128
	}
	return 0, 0, fmt.Errorf("%w: remaining length exceeds %d bytes", ErrMalformed, maxVarIntBytes)
}

// putUint16 writes v big-endian and returns 2.
func putUint16(dst []byte, v uint16) int {
	binary.BigEndian.PutUint16(dst, v)
	return 2
}

// putString writes a length-prefixed string and returns the bytes written.
func putString(dst []byte, s string) int {
	binary.BigEndian.PutUint16(dst, uint16(len(s))) //nolint:gosec // length validated by caller
	return 2 + copy(dst[2:], s)
}

// putBytes writes length-prefixed binary data and returns the bytes written.
func putBytes(dst []byte, b []byte) int {
	binary.BigEndian.PutUint16(dst, uint16(len(b))) //nolint:gosec // length validated by caller
	return 2 + copy(dst[2:], b)
}

// readUint16 reads a big-endian uint16 at off.
func readUint16(src []byte, off int) (uint16, int, error) {
	if off+2 > len(src) {
		return 0, off, fmt.Errorf("%w: truncated 16-bit field at offset %d", ErrMalformed, off)
	}
	return binary.BigEndian.Uint16(src[off:]), off + 2, nil
}

// readBytes reads a length-prefixed field at off.
// The returned slice aliases src.
func readBytes(src []byte, off int) ([]byte, int, error) {
	length, next, err := readUint16(src, off)
	if err != nil {
		return nil, off, err
	}
	end := next + int(length)
	if end > len(src) {
		return nil, off, fmt.Errorf("%w: field length %d overruns frame at offset %d", ErrMalformed, length, off)
	}
	return src[next:end:end], end, nil
}
