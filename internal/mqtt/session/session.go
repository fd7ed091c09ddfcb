package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/event"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/transport"
	"github.com/nerrad567/gray-logic-sensor/internal/rng"
)

// Defaults applied by New for zero Config fields.
const (
	defaultKeepAlive      = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultAckTimeout     = 30 * time.Second
	defaultPingTimeout    = 10 * time.Second
	defaultMaxInflight    = 8
	defaultBufferSize     = 256

	// handshakePollInterval caps each Wait during Connect so ctx
	// cancellation is noticed promptly.
	handshakePollInterval = 100 * time.Millisecond

	// maxStalledSends bounds consecutive zero-byte writes before the
	// transport is declared dead.
	maxStalledSends = 8

	maxKeepAliveSeconds = 65535
)

// Config holds session settings.
type Config struct {
	// Address is the broker "host:port".
	Address string

	// ClientIDPrefix is followed by a random decimal suffix.
	ClientIDPrefix string

	Username string
	Password string

	// Will is sent in CONNECT when non-nil.
	Will *packet.Will

	// KeepAlive is announced to the broker and drives PINGREQ. Zero
	// selects the default; negative disables keep-alive.
	KeepAlive time.Duration

	ConnectTimeout time.Duration // CONNACK deadline
	AckTimeout     time.Duration // pending request lifetime
	PingTimeout    time.Duration // PINGRESP deadline

	MaxInflight int

	// RxBufferSize and TxBufferSize fix the inbound and outbound buffer
	// capacities for the life of the session.
	RxBufferSize int
	TxBufferSize int
}

// Logger defines the logging interface for the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is a single MQTT 3.1.1 client session over one Transport.
//
// It is driven cooperatively: the owner calls Wait to block for inbound
// bytes (bounded by a timeout) and Service to process them. No goroutines
// are started and nothing is safe for concurrent use.
type Session struct {
	cfg       Config
	transport transport.Transport
	random    rng.Source
	events    *event.Dispatcher
	logger    Logger
	now       func() time.Time

	state    State
	clientID string

	rx *packet.Buffer
	tx *packet.Buffer

	// readable is set by Wait and consumed by Service to tell an orderly
	// peer close (ready, zero bytes) apart from an idle stream.
	readable bool

	pending *pendingTable

	// inboundQoS2 holds identifiers of received QoS 2 messages awaiting
	// PUBREL, for duplicate suppression.
	inboundQoS2 map[uint16]struct{}

	lastSent   time.Time
	pingSentAt time.Time

	stats Stats
}

// New creates a Disconnected session. events may be nil.
func New(cfg Config, t transport.Transport, src rng.Source, events *event.Dispatcher) *Session {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.KeepAlive > maxKeepAliveSeconds*time.Second {
		cfg.KeepAlive = maxKeepAliveSeconds * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = defaultMaxInflight
	}
	if cfg.RxBufferSize <= 0 {
		cfg.RxBufferSize = defaultBufferSize
	}
	if cfg.TxBufferSize <= 0 {
		cfg.TxBufferSize = defaultBufferSize
	}
	if events == nil {
		events = event.NewDispatcher()
	}

	return &Session{
		cfg:         cfg,
		transport:   t,
		random:      src,
		events:      events,
		logger:      noopLogger{},
		now:         time.Now,
		rx:          packet.NewBuffer(cfg.RxBufferSize),
		tx:          packet.NewBuffer(cfg.TxBufferSize),
		pending:     newPendingTable(cfg.MaxInflight),
		inboundQoS2: make(map[uint16]struct{}, cfg.MaxInflight),
	}
}

// SetLogger sets the session logger.
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// State returns the connection state.
func (s *Session) State() State { return s.state }

// ClientID returns the identifier sent in the most recent CONNECT.
func (s *Session) ClientID() string { return s.clientID }

// Pending returns the number of requests awaiting acknowledgement.
func (s *Session) Pending() int { return s.pending.len() }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats { return s.stats }

// Connect opens the transport, sends CONNECT and waits for CONNACK.
//
// The wait is bounded by Config.ConnectTimeout. Any failure (refusal,
// timeout, transport error, unexpected packet or ctx cancellation) tears the
// transport down and leaves the session Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != Disconnected {
		return ErrAlreadyConnected
	}
	s.reset()
	s.state = Connecting

	if err := s.transport.Connect(ctx, s.cfg.Address); err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	}

	s.clientID = s.cfg.ClientIDPrefix + strconv.FormatUint(uint64(s.random.Uint32()), 10)
	connect := &packet.Connect{
		ClientID:     s.clientID,
		KeepAlive:    s.keepAliveSeconds(),
		CleanSession: true,
		Username:     s.cfg.Username,
		Will:         s.cfg.Will,
	}
	if s.cfg.Password != "" {
		connect.Password = []byte(s.cfg.Password)
	}
	if err := s.send(connect); err != nil {
		if s.state != Disconnected {
			return s.fail(fmt.Errorf("session: encoding CONNECT: %w", err))
		}
		return err
	}
	s.logger.Debug("CONNECT sent", "address", s.cfg.Address, "client_id", s.clientID)

	deadline := s.now().Add(s.cfg.ConnectTimeout)
	for s.state == Connecting {
		if err := ctx.Err(); err != nil {
			return s.fail(fmt.Errorf("session: connect cancelled: %w", err))
		}
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return s.fail(fmt.Errorf("%w after %s", ErrHandshakeTimeout, s.cfg.ConnectTimeout))
		}
		if _, err := s.Wait(min(remaining, handshakePollInterval)); err != nil {
			return err
		}
		if err := s.Service(); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe sends SUBSCRIBE for one filter and returns its packet
// identifier. The SUBACK is reported as a SubscriptionAcknowledged event.
func (s *Session) Subscribe(filter string, qos packet.QoS) (uint16, error) {
	if s.state != Connected {
		return 0, ErrNotConnected
	}
	if !qos.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if err := packet.ValidateTopicFilter(filter); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if s.pending.full() {
		return 0, ErrInflightFull
	}
	id, err := s.pending.nextID(s.random)
	if err != nil {
		return 0, err
	}

	sub := &packet.Subscribe{PacketID: id, Topics: []packet.Subscription{{Filter: filter, QoS: qos}}}
	if err := s.send(sub); err != nil {
		return 0, err
	}
	s.pending.add(id, &request{kind: requestSubscribe, topic: filter, sentAt: s.now()})
	s.logger.Debug("SUBSCRIBE sent", "topic", filter, "qos", int(qos), "packet_id", id)
	return id, nil
}

// Publish sends one application message and returns its packet identifier
// (zero at QoS 0).
//
// The payload is checked against the outbound capacity before anything is
// encoded. Per-call failures leave the session state unchanged.
func (s *Session) Publish(topic string, payload []byte, qos packet.QoS, retain bool) (uint16, error) {
	if s.state != Connected {
		return 0, ErrNotConnected
	}
	if !qos.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if err := packet.ValidateTopicName([]byte(topic)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if limit := s.tx.Cap() - packet.PublishOverhead(topic, qos); len(payload) > limit {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds %d", packet.ErrBufferTooSmall, len(payload), limit)
	}

	pub := &packet.Publish{QoS: qos, Retain: retain, Topic: []byte(topic), Payload: payload}
	if qos > packet.QoS0 {
		if s.pending.full() {
			return 0, ErrInflightFull
		}
		id, err := s.pending.nextID(s.random)
		if err != nil {
			return 0, err
		}
		pub.PacketID = id
	}

	if err := s.send(pub); err != nil {
		return 0, err
	}
	s.stats.MessagesPublished++

	switch qos {
	case packet.QoS1:
		s.pending.add(pub.PacketID, &request{kind: requestPublishQoS1, topic: topic, sentAt: s.now()})
	case packet.QoS2:
		s.pending.add(pub.PacketID, &request{kind: requestPublishQoS2, topic: topic, sentAt: s.now()})
	}
	return pub.PacketID, nil
}

// Wait blocks for at most timeout until inbound bytes (or a close) are
// ready. It is the only blocking call on a session.
func (s *Session) Wait(timeout time.Duration) (bool, error) {
	if s.state == Disconnected {
		return false, ErrNotConnected
	}
	ready, err := s.transport.PollReadable(timeout)
	if err != nil {
		return false, s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	}
	if ready {
		s.readable = true
	}
	return ready, nil
}

// Service processes everything the transport has already received,
// expires stale requests and keeps the connection alive. It never blocks.
//
// A returned error is fatal: the session is Disconnected and the transport
// is closed.
func (s *Session) Service() error {
	if s.state == Disconnected {
		return ErrNotConnected
	}

	readable := s.readable
	s.readable = false

	drained := 0
	for {
		n, err := s.transport.Receive(s.rx.Free())
		if err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
		}
		if err := s.rx.Commit(n); err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
		}
		drained += n
		s.stats.BytesReceived += uint64(n) //nolint:gosec // n is non-negative

		if err := s.processInbound(); err != nil {
			return err
		}
		if s.state == Disconnected {
			// A handler aborted the session.
			return ErrNotConnected
		}
		if n == 0 {
			break
		}
	}

	if readable && drained == 0 {
		return s.fail(ErrConnectionClosed)
	}

	if s.state == Connected {
		s.expireRequests()
		if err := s.keepAlive(); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect sends DISCONNECT when connected and closes the transport.
// It does not raise ConnectionLost. The session ends Disconnected even if
// the DISCONNECT could not be written.
func (s *Session) Disconnect() error {
	if s.state == Disconnected {
		return nil
	}
	var err error
	if s.state == Connected {
		err = s.write(packet.Disconnect{})
	}
	s.teardown()
	s.logger.Info("disconnected from broker", "client_id", s.clientID)
	return err
}

// Abort closes the transport without sending anything. It is safe to call
// in any state and more than once.
func (s *Session) Abort() error {
	if s.state == Disconnected {
		return nil
	}
	s.teardown()
	return nil
}

// processInbound decodes and handles every complete frame in rx.
func (s *Session) processInbound() error {
	for s.rx.Len() > 0 {
		p, n, err := packet.Decode(s.rx.Bytes(), s.rx.Cap())
		if errors.Is(err, packet.ErrIncomplete) {
			return nil
		}
		if err != nil {
			return s.fail(fmt.Errorf("%w: %w", ErrProtocolViolation, err))
		}
		s.stats.PacketsReceived++

		// Views into rx stay valid through handle; consume afterwards.
		if err := s.handle(p); err != nil {
			return err
		}
		if s.state == Disconnected {
			return nil
		}
		s.rx.Consume(n)
	}
	return nil
}

func (s *Session) handle(p packet.Packet) error {
	if s.state == Connecting {
		connack, ok := p.(*packet.Connack)
		if !ok {
			return s.fail(fmt.Errorf("%w: expected CONNACK, got %s", ErrProtocolViolation, p.Type()))
		}
		return s.handleConnack(connack)
	}

	switch pkt := p.(type) {
	case *packet.Publish:
		return s.handlePublish(pkt)
	case *packet.Ack:
		return s.handleAck(pkt)
	case *packet.Suback:
		s.handleSuback(pkt)
		return nil
	case packet.Pingresp:
		s.pingSentAt = time.Time{}
		return nil
	case packet.Disconnect:
		return s.fail(fmt.Errorf("%w: DISCONNECT received", ErrConnectionClosed))
	default:
		return s.fail(fmt.Errorf("%w: unexpected %s", ErrProtocolViolation, p.Type()))
	}
}

func (s *Session) handleConnack(p *packet.Connack) error {
	if !p.Accepted() {
		return s.fail(&ConnackError{Code: p.ReturnCode})
	}

	s.state = Connected
	s.stats.ConnectsTotal++
	s.stats.ConnectedSince = s.now()
	s.logger.Info("connected to broker",
		"address", s.cfg.Address,
		"client_id", s.clientID,
		"session_present", p.SessionPresent,
	)
	s.events.Dispatch(event.Event{Kind: event.ConnectionEstablished, SessionPresent: p.SessionPresent})
	return nil
}

func (s *Session) handlePublish(p *packet.Publish) error {
	if p.QoS == packet.QoS2 {
		if _, seen := s.inboundQoS2[p.PacketID]; seen {
			s.stats.DuplicatesDropped++
			s.logger.Debug("duplicate QoS 2 message suppressed", "packet_id", p.PacketID)
			return s.send(&packet.Ack{Kind: packet.TypePubrec, PacketID: p.PacketID})
		}
	}

	s.stats.MessagesReceived++
	s.logger.Debug("message received",
		"topic", string(p.Topic),
		"qos", int(p.QoS),
		"bytes", len(p.Payload),
	)
	s.events.Dispatch(event.Event{
		Kind:     event.MessageReceived,
		Topic:    p.Topic,
		Payload:  p.Payload,
		QoS:      p.QoS,
		Retain:   p.Retain,
		Dup:      p.Dup,
		PacketID: p.PacketID,
	})
	if s.state != Connected {
		return nil
	}

	switch p.QoS {
	case packet.QoS1:
		return s.send(&packet.Ack{Kind: packet.TypePuback, PacketID: p.PacketID})
	case packet.QoS2:
		if len(s.inboundQoS2) < s.cfg.MaxInflight {
			s.inboundQoS2[p.PacketID] = struct{}{}
		} else {
			s.logger.Warn("inbound QoS 2 table full, duplicate suppression disabled", "packet_id", p.PacketID)
		}
		return s.send(&packet.Ack{Kind: packet.TypePubrec, PacketID: p.PacketID})
	}
	return nil
}

func (s *Session) handleAck(p *packet.Ack) error {
	switch p.Kind {
	case packet.TypePuback:
		if r, ok := s.pending.get(p.PacketID); ok && r.kind == requestPublishQoS1 {
			s.complete(p.PacketID, r)
			return nil
		}
	case packet.TypePubrec:
		if r, ok := s.pending.get(p.PacketID); ok && r.kind == requestPublishQoS2 {
			r.released = true
			r.sentAt = s.now()
			return s.send(&packet.Ack{Kind: packet.TypePubrel, PacketID: p.PacketID})
		}
	case packet.TypePubcomp:
		if r, ok := s.pending.get(p.PacketID); ok && r.kind == requestPublishQoS2 && r.released {
			s.complete(p.PacketID, r)
			return nil
		}
	case packet.TypePubrel:
		delete(s.inboundQoS2, p.PacketID)
		return s.send(&packet.Ack{Kind: packet.TypePubcomp, PacketID: p.PacketID})
	}
	s.logger.Debug("ignoring unmatched acknowledgement", "type", p.Kind.String(), "packet_id", p.PacketID)
	return nil
}

func (s *Session) handleSuback(p *packet.Suback) {
	r, ok := s.pending.get(p.PacketID)
	if !ok || r.kind != requestSubscribe {
		s.logger.Debug("ignoring unmatched SUBACK", "packet_id", p.PacketID)
		return
	}
	s.pending.remove(p.PacketID)

	if p.ReturnCodes[0] == packet.SubackFailure {
		s.logger.Warn("subscription refused", "topic", r.topic, "packet_id", p.PacketID)
	} else {
		s.logger.Info("subscribed", "topic", r.topic, "granted_qos", int(p.ReturnCodes[0]), "packet_id", p.PacketID)
	}
	s.events.Dispatch(event.Event{
		Kind:        event.SubscriptionAcknowledged,
		PacketID:    p.PacketID,
		ReturnCodes: p.ReturnCodes,
		Request:     r.kind.String(),
	})
}

func (s *Session) complete(id uint16, r *request) {
	s.pending.remove(id)
	s.logger.Debug("publish acknowledged", "topic", r.topic, "packet_id", id, "request", r.kind.String())
	s.events.Dispatch(event.Event{Kind: event.PublishCompleted, PacketID: id, Request: r.kind.String()})
}

func (s *Session) expireRequests() {
	for id, r := range s.pending.expire(s.now(), s.cfg.AckTimeout) {
		s.stats.RequestsExpired++
		s.logger.Warn("request expired without acknowledgement",
			"request", r.kind.String(),
			"topic", r.topic,
			"packet_id", id,
		)
		s.events.Dispatch(event.Event{Kind: event.RequestExpired, PacketID: id, Request: r.kind.String()})
	}
}

// keepAlive sends PINGREQ once the keep-alive interval has passed since the
// last outbound packet, and fails the session when the answer is late.
func (s *Session) keepAlive() error {
	if s.cfg.KeepAlive < 0 {
		return nil
	}
	now := s.now()
	if !s.pingSentAt.IsZero() {
		if now.Sub(s.pingSentAt) >= s.cfg.PingTimeout {
			return s.fail(fmt.Errorf("%w after %s", ErrPingTimeout, s.cfg.PingTimeout))
		}
		return nil
	}
	if now.Sub(s.lastSent) < s.cfg.KeepAlive {
		return nil
	}
	if err := s.send(packet.Pingreq{}); err != nil {
		return err
	}
	s.pingSentAt = now
	s.stats.PingsSent++
	return nil
}

// send writes p and fails the session if the transport breaks.
// Encoding errors are returned as is and leave the session untouched.
func (s *Session) send(p packet.Packet) error {
	err := s.write(p)
	if errors.Is(err, ErrTransport) {
		return s.fail(err)
	}
	return err
}

// write encodes p into tx and flushes it, retrying partial writes.
func (s *Session) write(p packet.Packet) error {
	if _, err := packet.Encode(s.tx, p); err != nil {
		return err
	}

	stalled := 0
	for s.tx.Len() > 0 {
		n, err := s.transport.Send(s.tx.Bytes())
		if err != nil {
			s.tx.Reset()
			return fmt.Errorf("%w: sending %s: %w", ErrTransport, p.Type(), err)
		}
		if n == 0 {
			stalled++
			if stalled >= maxStalledSends {
				s.tx.Reset()
				return fmt.Errorf("%w: sending %s: no progress", ErrTransport, p.Type())
			}
			continue
		}
		stalled = 0
		s.tx.Consume(n)
		s.stats.BytesSent += uint64(n) //nolint:gosec // n is positive
	}
	s.stats.PacketsSent++
	s.lastSent = s.now()
	return nil
}

// fail tears the session down after a fatal error and reports it.
func (s *Session) fail(err error) error {
	wasConnected := s.state == Connected
	s.teardown()

	// A refused CONNECT is the caller's to report; it knows the attempt.
	var connackErr *ConnackError
	if !errors.As(err, &connackErr) {
		s.logger.Warn("session failed", "error", err, "was_connected", wasConnected)
	}
	if wasConnected {
		s.events.Dispatch(event.Event{Kind: event.ConnectionLost, Err: err})
	}
	return err
}

func (s *Session) teardown() {
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close failed", "error", err)
	}
	s.state = Disconnected
	s.stats.ConnectedSince = time.Time{}
	s.reset()
}

func (s *Session) reset() {
	s.rx.Reset()
	s.tx.Reset()
	s.readable = false
	s.pending.clear()
	clear(s.inboundQoS2)
	s.pingSentAt = time.Time{}
	s.lastSent = s.now()
}

func (s *Session) keepAliveSeconds() uint16 {
	if s.cfg.KeepAlive < 0 {
		return 0
	}
	return uint16(s.cfg.KeepAlive / time.Second) //nolint:gosec // capped in New
}
