package session

import "time"

// State is the connection lifecycle state.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats holds session counters.
type Stats struct {
	PacketsSent       uint64
	PacketsReceived   uint64
	BytesSent         uint64
	BytesReceived     uint64
	MessagesPublished uint64 // PUBLISH frames sent by the application
	MessagesReceived  uint64 // inbound PUBLISH delivered to the handler
	DuplicatesDropped uint64 // QoS 2 redeliveries suppressed
	PingsSent         uint64
	RequestsExpired   uint64
	ConnectsTotal     uint64 // successful handshakes
	ConnectedSince    time.Time
}
