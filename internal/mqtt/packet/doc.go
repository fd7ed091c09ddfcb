// Package packet encodes and decodes MQTT 3.1.1 control packets for the
// Gray Logic sensor node.
//
// The codec is written for devices with small, fixed memory budgets:
//   - Encoding writes directly into a caller-owned, fixed-capacity Buffer
//   - The encoded size is computed before any byte is written, so a packet
//     that does not fit fails with ErrBufferTooSmall and leaves the buffer
//     untouched
//   - Decoding never allocates for PUBLISH: topic and payload are slices
//     that alias the inbound buffer
//
// # Framing
//
// Every packet is a fixed header (type, flags, remaining length) followed by
// a variable header and payload:
//
//	Byte 0:    packet type (upper 4 bits) | flags (lower 4 bits)
//	Byte 1-4:  remaining length (variable byte integer, 1-4 bytes)
//	Byte N+:   variable header and payload (remaining length bytes)
//
// # Decoding results
//
// Decode reports one of three outcomes:
//   - a packet plus the number of bytes it consumed
//   - ErrIncomplete: the bytes are a prefix of a frame; keep accumulating
//   - ErrMalformed (or ErrPacketTooLarge, which wraps it): the stream is
//     corrupt or the frame can never fit; drop the connection
//
// # Usage
//
//	tx := packet.NewBuffer(256)
//	if _, err := packet.Encode(tx, packet.Pingreq{}); err != nil {
//	    return err
//	}
//
//	pkt, n, err := packet.Decode(rx.Bytes(), rx.Cap())
//	switch {
//	case errors.Is(err, packet.ErrIncomplete):
//	    // wait for more bytes
//	case err != nil:
//	    // fatal, drop the connection
//	default:
//	    handle(pkt)
//	    rx.Consume(n)
//	}
package packet
