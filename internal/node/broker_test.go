package node

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/event"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/session"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/transport"
	"github.com/nerrad567/gray-logic-sensor/internal/rng"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// mockBroker is a single-connection MQTT 3.1.1 broker speaking just enough
// of the protocol for the node: CONNACK, SUBACK (plus one retained message
// on the subscribed topic), the QoS 2 publish exchange and DISCONNECT.
type mockBroker struct {
	listener net.Listener

	mu           sync.Mutex
	clientID     string
	payloads     []string
	disconnected bool

	published chan string
	done      chan struct{}
}

func newMockBroker(t *testing.T) *mockBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &mockBroker{
		listener:  ln,
		published: make(chan string, 16),
		done:      make(chan struct{}),
	}
	go b.serve(t)
	t.Cleanup(func() {
		ln.Close()
		<-b.done
	})
	return b
}

func (b *mockBroker) addr() string { return b.listener.Addr().String() }

func (b *mockBroker) serve(t *testing.T) {
	defer close(b.done)

	conn, err := b.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var pending []byte
	chunk := make([]byte, 512)
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test broker
		n, err := conn.Read(chunk)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				t.Logf("mock broker read: %v", err)
			}
			return
		}
		pending = append(pending, chunk[:n]...)

		for {
			_, used, err := packet.Decode(pending, 0)
			if errors.Is(err, packet.ErrIncomplete) {
				break
			}
			if err != nil {
				t.Errorf("mock broker decode: %v", err)
				return
			}
			// Copy before the bytes are consumed.
			frame := append([]byte(nil), pending[:used]...)
			pending = pending[used:]
			p, _, _ := packet.Decode(frame, 0)

			if !b.handle(t, conn, p) {
				return
			}
		}
	}
}

func (b *mockBroker) handle(t *testing.T, conn net.Conn, p packet.Packet) bool {
	switch pk := p.(type) {
	case *packet.Connect:
		b.mu.Lock()
		b.clientID = pk.ClientID
		b.mu.Unlock()
		b.write(t, conn, &packet.Connack{ReturnCode: packet.Accepted})
	case *packet.Subscribe:
		codes := make([]byte, len(pk.Topics))
		for i, s := range pk.Topics {
			codes[i] = byte(s.QoS)
		}
		b.write(t, conn, &packet.Suback{PacketID: pk.PacketID, ReturnCodes: codes})
		b.write(t, conn, &packet.Publish{
			QoS:     packet.QoS0,
			Retain:  true,
			Topic:   []byte(pk.Topics[0].Filter),
			Payload: []byte("hello sensor"),
		})
	case *packet.Publish:
		payload := string(pk.Payload)
		b.mu.Lock()
		b.payloads = append(b.payloads, payload)
		b.mu.Unlock()
		switch pk.QoS {
		case packet.QoS1:
			b.write(t, conn, &packet.Ack{Kind: packet.TypePuback, PacketID: pk.PacketID})
		case packet.QoS2:
			b.write(t, conn, &packet.Ack{Kind: packet.TypePubrec, PacketID: pk.PacketID})
		}
		b.published <- payload
	case *packet.Ack:
		if pk.Kind == packet.TypePubrel {
			b.write(t, conn, &packet.Ack{Kind: packet.TypePubcomp, PacketID: pk.PacketID})
		}
	case packet.Pingreq:
		b.write(t, conn, packet.Pingresp{})
	case packet.Disconnect:
		b.mu.Lock()
		b.disconnected = true
		b.mu.Unlock()
		return false
	}
	return true
}

func (b *mockBroker) write(t *testing.T, conn net.Conn, p packet.Packet) {
	buf := packet.NewBuffer(1024)
	if _, err := packet.Encode(buf, p); err != nil {
		t.Errorf("mock broker encode %s: %v", p.Type(), err)
		return
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		t.Logf("mock broker write: %v", err)
	}
}

func TestRunAgainstBroker(t *testing.T) {
	broker := newMockBroker(t)

	d := event.NewDispatcher()
	s := session.New(session.Config{
		Address:        broker.addr(),
		ClientIDPrefix: "zephyr_mqtt_client_",
		ConnectTimeout: 2 * time.Second,
	}, transport.NewTCP(transport.Config{}), rng.NewSeeded([32]byte{1}), d)

	n := New(Config{
		SubscribeTopic: "rtest",
		SubscribeQoS:   packet.QoS1,
		PublishTopic:   "sensors/temperature_humidity",
		PublishQoS:     packet.QoS2,
		Interval:       50 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}, s, telemetry.NewSimulator(rng.NewSeeded([32]byte{2}), telemetry.Range{}, telemetry.Range{}))
	d.Register(n.HandleEvent)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	for range 3 {
		select {
		case payload := <-broker.published:
			if _, err := telemetry.ParsePayload([]byte(payload)); err != nil {
				t.Errorf("broker got unparsable payload %q: %v", payload, err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for publishes")
		}
	}
	// Give the last exchange a chance to complete before shutting down.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-broker.done

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if !broker.disconnected {
		t.Error("broker did not receive DISCONNECT")
	}
	if !strings.HasPrefix(broker.clientID, "zephyr_mqtt_client_") || broker.clientID == "zephyr_mqtt_client_" {
		t.Errorf("client id = %q", broker.clientID)
	}

	stats := n.Stats()
	if stats.MessagesReceived != 1 {
		t.Errorf("MessagesReceived = %d, want 1", stats.MessagesReceived)
	}
	if stats.PublishAttempts < 3 || stats.PublishFailures != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if got := s.Stats().MessagesPublished; got < 3 {
		t.Errorf("session MessagesPublished = %d, want at least 3", got)
	}
}
