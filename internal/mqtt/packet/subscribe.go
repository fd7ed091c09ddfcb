package packet

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Subscription is one topic filter requested in a SUBSCRIBE.
type Subscription struct {
	Filter string
	QoS    QoS
}

// Subscribe requests one or more subscriptions.
type Subscribe struct {
	PacketID uint16
	Topics   []Subscription
}

// Type implements Packet.
func (*Subscribe) Type() Type { return TypeSubscribe }

func (*Subscribe) flags() byte { return 0x02 }

func (s *Subscribe) validate() error {
	if s.PacketID == 0 {
		return fmt.Errorf("%w: SUBSCRIBE packet identifier 0", ErrInvalidPacket)
	}
	if len(s.Topics) == 0 {
		return fmt.Errorf("%w: SUBSCRIBE without topic filters", ErrInvalidPacket)
	}
	for _, t := range s.Topics {
		if err := ValidateTopicFilter(t.Filter); err != nil {
			return err
		}
		if !t.QoS.Valid() {
			return fmt.Errorf("%w: requested QoS %d", ErrInvalidPacket, t.QoS)
		}
	}
	return nil
}

func (s *Subscribe) remainingLength() int {
	n := 2
	for _, t := range s.Topics {
		n += 2 + len(t.Filter) + 1
	}
	return n
}

func (s *Subscribe) encodeBody(dst []byte) {
	i := putUint16(dst, s.PacketID)
	for _, t := range s.Topics {
		i += putString(dst[i:], t.Filter)
		dst[i] = byte(t.QoS)
		i++
	}
}

// ValidateTopicFilter checks a subscription filter. '+' must occupy a whole
// level and '#' must be the last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty topic filter", ErrInvalidPacket)
	}
	if len(filter) > maxStringLength || !utf8.ValidString(filter) {
		return fmt.Errorf("%w: topic filter is too long or not UTF-8", ErrInvalidPacket)
	}
	for i := 0; i < len(filter); i++ {
		switch filter[i] {
		case 0:
			return fmt.Errorf("%w: topic filter contains NUL", ErrInvalidPacket)
		case '+':
			if (i > 0 && filter[i-1] != '/') || (i+1 < len(filter) && filter[i+1] != '/') {
				return fmt.Errorf("%w: '+' must occupy a whole level in %q", ErrInvalidPacket, filter)
			}
		case '#':
			if i != len(filter)-1 || (i > 0 && filter[i-1] != '/') {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidPacket, filter)
			}
		}
	}
	return nil
}

// MatchTopic reports whether topic is selected by filter. Both are assumed
// valid. Wildcards in the first level do not match topics starting with '$'.
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

func decodeSubscribe(body []byte) (*Subscribe, error) {
	id, off, err := readUint16(body, 0)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: SUBSCRIBE packet identifier 0", ErrMalformed)
	}
	s := &Subscribe{PacketID: id}
	for off < len(body) {
		filter, next, err := readBytes(body, off)
		if err != nil {
			return nil, err
		}
		if next >= len(body) {
			return nil, fmt.Errorf("%w: SUBSCRIBE filter without QoS byte", ErrMalformed)
		}
		qos := QoS(body[next])
		if !qos.Valid() {
			return nil, fmt.Errorf("%w: SUBSCRIBE requested QoS byte 0x%02X", ErrMalformed, body[next])
		}
		s.Topics = append(s.Topics, Subscription{Filter: string(filter), QoS: qos})
		off = next + 1
	}
	if len(s.Topics) == 0 {
		return nil, fmt.Errorf("%w: SUBSCRIBE without topic filters", ErrMalformed)
	}
	return s, nil
}

// Suback answers a SUBSCRIBE with one return code per requested filter:
// the granted QoS or SubackFailure.
//
// Decoded ReturnCodes alias the source bytes passed to Decode.
type Suback struct {
	PacketID    uint16
	ReturnCodes []byte
}

// Type implements Packet.
func (*Suback) Type() Type { return TypeSuback }

func (*Suback) flags() byte { return 0 }

func (s *Suback) validate() error {
	if s.PacketID == 0 {
		return fmt.Errorf("%w: SUBACK packet identifier 0", ErrInvalidPacket)
	}
	if len(s.ReturnCodes) == 0 {
		return fmt.Errorf("%w: SUBACK without return codes", ErrInvalidPacket)
	}
	for _, c := range s.ReturnCodes {
		if !validSubackCode(c) {
			return fmt.Errorf("%w: SUBACK return code 0x%02X", ErrInvalidPacket, c)
		}
	}
	return nil
}

func (s *Suback) remainingLength() int { return 2 + len(s.ReturnCodes) }

func (s *Suback) encodeBody(dst []byte) {
	i := putUint16(dst, s.PacketID)
	copy(dst[i:], s.ReturnCodes)
}

func validSubackCode(c byte) bool {
	return c <= byte(QoS2) || c == SubackFailure
}

func decodeSuback(body []byte) (*Suback, error) {
	id, off, err := readUint16(body, 0)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: SUBACK packet identifier 0", ErrMalformed)
	}
	codes := body[off:len(body):len(body)]
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: SUBACK without return codes", ErrMalformed)
	}
	for _, c := range codes {
		if !validSubackCode(c) {
			return nil, fmt.Errorf("%w: SUBACK return code 0x%02X", ErrMalformed, c)
		}
	}
	return &Suback{PacketID: id, ReturnCodes: codes}, nil
}
