package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/event"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/rng"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeTransport is an in-memory Transport with a scriptable broker side.
//
// Inbound chunks are delivered one per Receive call. PollReadable advances
// the fake clock by its timeout when nothing is queued, so timeouts elapse
// instantly.
type fakeTransport struct {
	clock *fakeClock

	connectErr error
	sendErr    error
	maxWrite   int // limit per Send to force partial writes, 0 = no limit

	connected  bool
	connects   int
	closes     int
	peerClosed bool

	inbound [][]byte

	// out accumulates sent bytes until they form whole frames.
	out    []byte
	frames [][]byte

	// respond is called for every complete frame the session sends.
	respond func(p packet.Packet)
}

func (f *fakeTransport) Connect(_ context.Context, _ string) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.peerClosed = false
	return nil
}

func (f *fakeTransport) Send(p []byte) (int, error) {
	if !f.connected {
		return 0, errors.New("fake: not connected")
	}
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	n := len(p)
	if f.maxWrite > 0 && n > f.maxWrite {
		n = f.maxWrite
	}
	f.out = append(f.out, p[:n]...)
	f.collectFrames()
	return n, nil
}

func (f *fakeTransport) collectFrames() {
	for {
		_, n, err := packet.Decode(f.out, 0)
		if err != nil {
			return
		}
		frame := append([]byte(nil), f.out[:n]...)
		f.out = f.out[n:]
		f.frames = append(f.frames, frame)
		if f.respond != nil {
			p, _, _ := packet.Decode(frame, 0)
			f.respond(p)
		}
	}
}

func (f *fakeTransport) Receive(p []byte) (int, error) {
	if !f.connected {
		return 0, errors.New("fake: not connected")
	}
	if len(f.inbound) == 0 || len(p) == 0 {
		return 0, nil
	}
	n := copy(p, f.inbound[0])
	if n < len(f.inbound[0]) {
		f.inbound[0] = f.inbound[0][n:]
	} else {
		f.inbound = f.inbound[1:]
	}
	return n, nil
}

func (f *fakeTransport) PollReadable(timeout time.Duration) (bool, error) {
	if !f.connected {
		return false, errors.New("fake: not connected")
	}
	if len(f.inbound) > 0 || f.peerClosed {
		return true, nil
	}
	f.clock.Advance(timeout)
	return false, nil
}

func (f *fakeTransport) Close() error {
	if f.connected {
		f.closes++
	}
	f.connected = false
	return nil
}

// queue schedules raw inbound bytes as one receive chunk.
func (f *fakeTransport) queue(chunk []byte) {
	f.inbound = append(f.inbound, chunk)
}

// queuePacket schedules an encoded packet as one receive chunk.
func (f *fakeTransport) queuePacket(t *testing.T, p packet.Packet) {
	t.Helper()
	f.queue(encodeFrame(t, p))
}

// sent decodes every frame the session has written so far.
func (f *fakeTransport) sent(t *testing.T) []packet.Packet {
	t.Helper()
	var out []packet.Packet
	for _, frame := range f.frames {
		p, _, err := packet.Decode(frame, 0)
		if err != nil {
			t.Fatalf("session sent an undecodable frame % X: %v", frame, err)
		}
		out = append(out, p)
	}
	return out
}

// sentOfType returns the sent packets of one type.
func (f *fakeTransport) sentOfType(t *testing.T, typ packet.Type) []packet.Packet {
	t.Helper()
	var out []packet.Packet
	for _, p := range f.sent(t) {
		if p.Type() == typ {
			out = append(out, p)
		}
	}
	return out
}

func encodeFrame(t *testing.T, p packet.Packet) []byte {
	t.Helper()
	buf := packet.NewBuffer(4096)
	if _, err := packet.Encode(buf, p); err != nil {
		t.Fatalf("Encode(%s) error = %v", p.Type(), err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

// acceptingBroker answers CONNECT with the given return code.
func acceptingBroker(t *testing.T, f *fakeTransport, code packet.ReturnCode) {
	f.respond = func(p packet.Packet) {
		if p.Type() == packet.TypeConnect {
			f.queuePacket(t, &packet.Connack{ReturnCode: code})
		}
	}
}

// sequence returns a random source that replays values, then repeats the
// last one.
func sequence(values ...uint32) rng.Source {
	i := 0
	return rng.Func(func() uint32 {
		v := values[min(i, len(values)-1)]
		i++
		return v
	})
}

// recorder collects dispatched events. Views are copied.
type recorder struct {
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	e.Topic = append([]byte(nil), e.Topic...)
	e.Payload = append([]byte(nil), e.Payload...)
	e.ReturnCodes = append([]byte(nil), e.ReturnCodes...)
	r.events = append(r.events, e)
}

func (r *recorder) count(kind event.Kind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind event.Kind) (event.Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return event.Event{}, false
}

type harness struct {
	session   *Session
	transport *fakeTransport
	clock     *fakeClock
	events    *recorder
}

func newHarness(t *testing.T, cfg Config, src rng.Source) *harness {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:1883"
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = "zephyr_mqtt_client_"
	}
	if src == nil {
		src = sequence(1234, 0x0101, 0x0202, 0x0303, 0x0404, 0x0505, 0x0606, 0x0707, 0x0808)
	}

	clock := newFakeClock()
	tr := &fakeTransport{clock: clock}
	rec := &recorder{}
	d := event.NewDispatcher()
	d.Register(rec.handle)

	s := New(cfg, tr, src, d)
	s.now = clock.Now
	return &harness{session: s, transport: tr, clock: clock, events: rec}
}

// connected returns a harness whose session completed the handshake.
func connected(t *testing.T, cfg Config, src rng.Source) *harness {
	t.Helper()
	h := newHarness(t, cfg, src)
	acceptingBroker(t, h.transport, packet.Accepted)
	if err := h.session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return h
}

// service runs one Wait/Service round.
func (h *harness) service(t *testing.T) error {
	t.Helper()
	if _, err := h.session.Wait(10 * time.Millisecond); err != nil {
		return err
	}
	return h.session.Service()
}

// levelLogger counts entries per level.
type levelLogger struct {
	counts map[string]int
}

func newLevelLogger() *levelLogger { return &levelLogger{counts: map[string]int{}} }

func (l *levelLogger) Debug(string, ...any) { l.counts["debug"]++ }
func (l *levelLogger) Info(string, ...any)  { l.counts["info"]++ }
func (l *levelLogger) Warn(string, ...any)  { l.counts["warn"]++ }
func (l *levelLogger) Error(string, ...any) { l.counts["error"]++ }
