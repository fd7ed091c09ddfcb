package session

import (
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/rng"
)

// maxIDDraws bounds how often a colliding packet identifier is redrawn.
const maxIDDraws = 32

type requestKind int

const (
	requestSubscribe requestKind = iota + 1
	requestPublishQoS1
	requestPublishQoS2
)

func (k requestKind) String() string {
	switch k {
	case requestSubscribe:
		return "subscribe"
	case requestPublishQoS1:
		return "publish_qos1"
	case requestPublishQoS2:
		return "publish_qos2"
	default:
		return "unknown"
	}
}

// request is an outbound SUBSCRIBE or QoS 1/2 PUBLISH awaiting its
// acknowledgement.
type request struct {
	kind   requestKind
	topic  string
	sentAt time.Time

	// released is set once PUBREC arrived and PUBREL went out.
	released bool
}

// pendingTable is the bounded set of live requests keyed by packet
// identifier. An identifier is never handed out while it is in the table.
type pendingTable struct {
	limit    int
	requests map[uint16]*request
}

func newPendingTable(limit int) *pendingTable {
	return &pendingTable{
		limit:    limit,
		requests: make(map[uint16]*request, limit),
	}
}

func (t *pendingTable) full() bool {
	return len(t.requests) >= t.limit
}

func (t *pendingTable) len() int {
	return len(t.requests)
}

// nextID draws a random non-zero identifier not currently in use.
func (t *pendingTable) nextID(src rng.Source) (uint16, error) {
	for range maxIDDraws {
		id := uint16(src.Uint32()) //nolint:gosec // truncation intended
		if id == 0 {
			continue
		}
		if _, live := t.requests[id]; live {
			continue
		}
		return id, nil
	}
	return 0, ErrNoPacketID
}

func (t *pendingTable) add(id uint16, r *request) {
	t.requests[id] = r
}

func (t *pendingTable) get(id uint16) (*request, bool) {
	r, ok := t.requests[id]
	return r, ok
}

func (t *pendingTable) remove(id uint16) {
	delete(t.requests, id)
}

// expire removes every request older than timeout and returns them.
func (t *pendingTable) expire(now time.Time, timeout time.Duration) map[uint16]*request {
	var expired map[uint16]*request
	for id, r := range t.requests {
		if now.Sub(r.sentAt) < timeout {
			continue
		}
		if expired == nil {
			expired = make(map[uint16]*request)
		}
		expired[id] = r
		delete(t.requests, id)
	}
	return expired
}

func (t *pendingTable) clear() {
	clear(t.requests)
}
