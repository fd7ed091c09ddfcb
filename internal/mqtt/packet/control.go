package packet

// Pingreq is the client's keep-alive probe.
type Pingreq struct{}

// Type implements Packet.
func (Pingreq) Type() Type           { return TypePingreq }
func (Pingreq) flags() byte          { return 0 }
func (Pingreq) validate() error      { return nil }
func (Pingreq) remainingLength() int { return 0 }
func (Pingreq) encodeBody([]byte)    {}

// Pingresp is the broker's answer to PINGREQ.
type Pingresp struct{}

// Type implements Packet.
func (Pingresp) Type() Type           { return TypePingresp }
func (Pingresp) flags() byte          { return 0 }
func (Pingresp) validate() error      { return nil }
func (Pingresp) remainingLength() int { return 0 }
func (Pingresp) encodeBody([]byte)    {}

// Disconnect ends the session cleanly. A 3.1.1 broker never sends it, but
// some do before closing the socket, so the client accepts it inbound.
type Disconnect struct{}

// Type implements Packet.
func (Disconnect) Type() Type           { return TypeDisconnect }
func (Disconnect) flags() byte          { return 0 }
func (Disconnect) validate() error      { return nil }
func (Disconnect) remainingLength() int { return 0 }
func (Disconnect) encodeBody([]byte)    {}
