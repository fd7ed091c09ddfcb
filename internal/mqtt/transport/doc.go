// Package transport provides the byte stream underneath the MQTT session.
//
// A Transport owns exactly one stream connection. It never retries and
// never blocks except inside PollReadable, which is bounded by the timeout
// the caller passes. The session pairs a readiness poll with a
// non-blocking Receive:
//
//	ready, err := t.PollReadable(100 * time.Millisecond)
//	if err != nil {
//	    return err
//	}
//	if ready {
//	    n, err := t.Receive(buf)
//	    // n == 0 after a ready poll means the peer closed the stream
//	}
//
// TCP is the production implementation. Tests substitute in-memory fakes.
package transport
