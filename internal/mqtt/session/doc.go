// Package session implements the device side of an MQTT 3.1.1 session.
//
// A Session owns one transport, one fixed-capacity inbound buffer and one
// fixed-capacity outbound buffer. It never starts goroutines: the caller
// drives it with Wait (the only blocking call, bounded by a timeout) and
// Service (never blocks).
//
// # Lifecycle
//
//	Disconnected --Connect--> Connecting --CONNACK 0--> Connected
//	     ^                        |                         |
//	     +------------------------+-------------------------+
//	       refusal, timeout,        DISCONNECT, transport error,
//	       transport error          malformed frame, ping timeout
//
// Every transition to Disconnected closes the transport and clears the
// pending request table. Losing an established connection raises a
// ConnectionLost event; a failed handshake is reported by Connect's error.
//
// # Requests
//
// SUBSCRIBE and QoS 1/2 PUBLISH are tracked by a random, non-zero 16-bit
// packet identifier that is never handed out twice while live. Requests
// leave the table when acknowledged (SUBACK, PUBACK, PUBCOMP) or when
// Config.AckTimeout passes. QoS 2 is completed in both directions.
//
// # Usage
//
//	s := session.New(cfg, transport.NewTCP(tcfg), src, dispatcher)
//	if err := s.Connect(ctx); err != nil {
//	    return err
//	}
//	if _, err := s.Subscribe("rtest", packet.QoS1); err != nil {
//	    return err
//	}
//	for {
//	    if _, err := s.Wait(100 * time.Millisecond); err != nil {
//	        return err
//	    }
//	    if err := s.Service(); err != nil {
//	        return err
//	    }
//	}
package session
