// Package node is the sensor node's driver loop.
//
// Node runs the single cooperative cycle of the device: connect, subscribe,
// then repeatedly wait for inbound bytes (bounded by the poll interval),
// service the session and publish a telemetry sample whenever the publish
// interval has passed. When the session drops, the reconnect policy decides
// whether to dial again (with ×1.5 backoff) or to give up.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/event"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/session"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Defaults applied by New for zero Config fields.
const (
	defaultInterval          = time.Second
	defaultPollInterval      = 100 * time.Millisecond
	defaultReconnectInitial  = time.Second
	defaultReconnectMaxDelay = 60 * time.Second

	backoffFactor = 1.5
)

// Session is the part of session.Session the loop drives.
type Session interface {
	Connect(ctx context.Context) error
	Subscribe(filter string, qos packet.QoS) (uint16, error)
	Publish(topic string, payload []byte, qos packet.QoS, retain bool) (uint16, error)
	Wait(timeout time.Duration) (bool, error)
	Service() error
	Disconnect() error
	State() session.State
}

// ReconnectPolicy controls what happens after a failed connect or a lost
// connection.
type ReconnectPolicy struct {
	// Enabled turns reconnection on. When false the first failure ends Run.
	Enabled bool

	// InitialDelay is the wait before the second attempt. Each further
	// wait is 1.5 times longer, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// MaxAttempts bounds consecutive failed attempts. 0 means unlimited.
	MaxAttempts int
}

// Config holds driver loop settings.
type Config struct {
	SubscribeTopic string
	SubscribeQoS   packet.QoS

	PublishTopic  string
	PublishQoS    packet.QoS
	PublishRetain bool

	// Interval is the publish cadence.
	Interval time.Duration

	// PollInterval bounds each wait for inbound bytes.
	PollInterval time.Duration

	Reconnect ReconnectPolicy
}

// Logger defines the logging interface for the node.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats holds driver loop counters.
type Stats struct {
	PublishAttempts  uint64
	PublishFailures  uint64
	MessagesReceived uint64
	ConnectAttempts  uint64
	Reconnects       uint64 // successful connects after the first
}

// Node drives one session.
type Node struct {
	cfg       Config
	session   Session
	generator telemetry.Generator
	clock     Clock
	logger    Logger

	scratch   []byte
	connected bool
	stats     Stats
}

// New creates a node around s. Samples come from gen.
func New(cfg Config, s Session, gen telemetry.Generator) *Node {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollInterval > cfg.Interval {
		cfg.PollInterval = cfg.Interval
	}
	if cfg.Reconnect.InitialDelay <= 0 {
		cfg.Reconnect.InitialDelay = defaultReconnectInitial
	}
	if cfg.Reconnect.MaxDelay <= 0 {
		cfg.Reconnect.MaxDelay = defaultReconnectMaxDelay
	}
	if cfg.Reconnect.MaxDelay < cfg.Reconnect.InitialDelay {
		cfg.Reconnect.MaxDelay = cfg.Reconnect.InitialDelay
	}

	return &Node{
		cfg:       cfg,
		session:   s,
		generator: gen,
		clock:     systemClock{},
		logger:    noopLogger{},
		scratch:   make([]byte, 0, telemetry.MaxPayloadSize),
	}
}

// SetLogger sets the node logger.
func (n *Node) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	n.logger = logger
}

// SetClock replaces the system clock.
func (n *Node) SetClock(c Clock) {
	n.clock = c
}

// Stats returns the loop counters. Call it from the goroutine running Run
// or after Run has returned.
func (n *Node) Stats() Stats {
	return n.stats
}

// Run connects and drives the session until ctx is cancelled, sending
// DISCONNECT on the way out. It returns nil after cancellation and an
// error when the connection cannot be (re-)established under the
// reconnect policy.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := n.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err := n.serve(ctx)
		if ctx.Err() != nil {
			n.shutdown()
			return nil
		}
		if !n.cfg.Reconnect.Enabled {
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		n.logger.Warn("connection lost, reconnecting", "error", err)
	}
}

// connect establishes the session and subscribes, retrying under the
// reconnect policy.
func (n *Node) connect(ctx context.Context) error {
	policy := n.cfg.Reconnect
	delay := policy.InitialDelay

	for attempt := 1; ; attempt++ {
		n.stats.ConnectAttempts++
		err := n.session.Connect(ctx)
		if err == nil {
			err = n.subscribe()
		}
		if err == nil {
			if n.connected {
				n.stats.Reconnects++
				n.logger.Info("reconnection successful", "attempt", attempt, "total_reconnects", n.stats.Reconnects)
			}
			n.connected = true
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var connackErr *session.ConnackError
		if errors.As(err, &connackErr) {
			n.logger.Error("broker refused connection", "error", err, "code", int(connackErr.Code), "attempt", attempt)
		} else {
			n.logger.Error("connect failed", "error", err, "attempt", attempt)
		}

		if !policy.Enabled {
			return err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt, err)
		}

		n.logger.Info("retrying connect", "attempt", attempt+1, "backoff", delay.String())
		if err := n.clock.Sleep(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay, policy.MaxDelay)
	}
}

// subscribe issues the configured subscription. A per-call failure on a
// live session means the configuration is wrong; the session is dropped so
// the caller sees a failed attempt.
func (n *Node) subscribe() error {
	if n.cfg.SubscribeTopic == "" {
		return nil
	}
	if _, err := n.session.Subscribe(n.cfg.SubscribeTopic, n.cfg.SubscribeQoS); err != nil {
		if n.session.State() == session.Connected {
			_ = n.session.Disconnect()
		}
		return fmt.Errorf("subscribing to %s: %w", n.cfg.SubscribeTopic, err)
	}
	return nil
}

// serve runs the poll / service / publish cycle until the session drops or
// ctx is cancelled.
func (n *Node) serve(ctx context.Context) error {
	nextPublish := n.clock.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n.session.State() != session.Connected {
			return session.ErrNotConnected
		}

		if _, err := n.session.Wait(n.cfg.PollInterval); err != nil {
			return err
		}
		if err := n.session.Service(); err != nil {
			return err
		}

		now := n.clock.Now()
		if now.Before(nextPublish) {
			continue
		}
		if err := n.publish(); err != nil {
			return err
		}
		nextPublish = nextPublish.Add(n.cfg.Interval)
		if !nextPublish.After(now) {
			nextPublish = now.Add(n.cfg.Interval)
		}
	}
}

// publish sends one sample. Only failures that dropped the session are
// returned.
func (n *Node) publish() error {
	sample := n.generator.Sample()
	n.scratch = telemetry.AppendPayload(n.scratch[:0], sample)
	n.stats.PublishAttempts++

	id, err := n.session.Publish(n.cfg.PublishTopic, n.scratch, n.cfg.PublishQoS, n.cfg.PublishRetain)
	if err != nil {
		n.stats.PublishFailures++
		n.logger.Warn("publish failed", "topic", n.cfg.PublishTopic, "error", err)
		if n.session.State() != session.Connected {
			return err
		}
		return nil
	}

	n.logger.Info("telemetry published",
		"topic", n.cfg.PublishTopic,
		"qos", int(n.cfg.PublishQoS),
		"packet_id", id,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
	)
	return nil
}

func (n *Node) shutdown() {
	if n.session.State() == session.Disconnected {
		return
	}
	if err := n.session.Disconnect(); err != nil {
		n.logger.Warn("disconnect failed", "error", err)
	}
}

// HandleEvent reports session events. Register it on the session's
// dispatcher.
func (n *Node) HandleEvent(e event.Event) {
	switch e.Kind {
	case event.ConnectionEstablished:
		n.logger.Info("session established", "session_present", e.SessionPresent)
	case event.ConnectionLost:
		n.logger.Warn("session lost", "error", e.Err)
	case event.MessageReceived:
		n.stats.MessagesReceived++
		n.logger.Info("message received",
			"topic", string(e.Topic),
			"payload", string(e.Payload),
			"qos", int(e.QoS),
			"retain", e.Retain,
		)
	case event.SubscriptionAcknowledged:
		n.logger.Info("subscription acknowledged", "packet_id", e.PacketID, "return_codes", e.ReturnCodes)
	case event.PublishCompleted:
		n.logger.Debug("publish completed", "packet_id", e.PacketID, "request", e.Request)
	case event.RequestExpired:
		n.logger.Warn("request expired", "packet_id", e.PacketID, "request", e.Request)
	}
}

// nextDelay grows d by the backoff factor, capped at limit.
func nextDelay(d, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffFactor)
	if next > limit {
		return limit
	}
	return next
}
