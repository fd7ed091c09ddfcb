package packet

import "fmt"

// Connack is the broker's answer to CONNECT.
type Connack struct {
	SessionPresent bool
	ReturnCode     ReturnCode
}

// Type implements Packet.
func (*Connack) Type() Type { return TypeConnack }

func (*Connack) flags() byte { return 0 }

func (*Connack) validate() error { return nil }

func (*Connack) remainingLength() int { return 2 }

func (c *Connack) encodeBody(dst []byte) {
	dst[0] = 0
	if c.SessionPresent {
		dst[0] = 1
	}
	dst[1] = byte(c.ReturnCode)
}

// Accepted reports whether the broker accepted the connection.
func (c *Connack) Accepted() bool {
	return c.ReturnCode == Accepted
}

func decodeConnack(body []byte) (*Connack, error) {
	if len(body) != 2 {
		return nil, fmt.Errorf("%w: CONNACK length %d, want 2", ErrMalformed, len(body))
	}
	if body[0]&^0x01 != 0 {
		return nil, fmt.Errorf("%w: reserved CONNACK acknowledge flags 0x%02X", ErrMalformed, body[0])
	}
	return &Connack{
		SessionPresent: body[0] == 1,
		ReturnCode:     ReturnCode(body[1]),
	}, nil
}
