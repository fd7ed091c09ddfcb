package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the collector's broker connection.
//
// The sensor node speaks MQTT through its own fixed-buffer session; the
// collector is an ordinary host process and uses paho, which brings its own
// goroutines, auto-reconnect and subscription handling. Client adds a status
// topic, re-subscription after reconnect and an Observer that learns how
// long each outage lasted.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	opts     Options
	clientID string

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// stateMu guards connected, lostAt and observer.
	stateMu   sync.Mutex
	connected bool
	lostAt    time.Time
	observer  Observer
	now       func() time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// Observer is told when the broker connection drops and when paho has
// re-established it. Calls arrive on paho goroutines and must not block.
type Observer interface {
	ConnectionLost(err error)
	ConnectionRestored(downtime time.Duration)
}

// Logger is the subset of logging.Logger the client writes to.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho invokes it on its own
// goroutines. A returned error is logged; the message is acknowledged
// regardless.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker with a unique client ID, registers the status
// topic as LWT and waits for the first CONNACK. Only that first attempt is
// reported to the caller; later drops are retried by paho when
// o.Reconnect.Enabled is set.
func Connect(o Options) (*Client, error) {
	c := &Client{
		opts:          o,
		clientID:      uniqueClientID(o.ClientID),
		subscriptions: make(map[string]subscription),
		now:           time.Now,
	}

	opts := buildClientOptions(o, c.clientID)
	configureLWT(opts, o.StatusTopic, c.clientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously.
	c.stateMu.Lock()
	c.connected = true
	c.stateMu.Unlock()

	return c, nil
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// SetObserver registers o for connection changes. Pass nil to stop
// notifications.
func (c *Client) SetObserver(o Observer) {
	c.stateMu.Lock()
	c.observer = o
	c.stateMu.Unlock()
}

// handleConnect runs on the first connect and after every reconnect. Only
// the latter has a recorded loss to report.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	c.connected = true
	lostAt := c.lostAt
	c.lostAt = time.Time{}
	observer := c.observer
	c.stateMu.Unlock()

	c.restoreSubscriptions()
	c.publishStatus(buildOnlinePayload(c.clientID))

	if !lostAt.IsZero() && observer != nil {
		observer.ConnectionRestored(c.now().Sub(lostAt))
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.stateMu.Lock()
	c.connected = false
	c.lostAt = c.now()
	observer := c.observer
	c.stateMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err, "auto_reconnect", c.opts.Reconnect.Enabled)
	}
	if observer != nil {
		observer.ConnectionLost(err)
	}
}

// restoreSubscriptions replays every tracked filter. The session is clean,
// so the broker forgot them with the old connection.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go c.logSubscribeResult(sub.topic, token)
	}
}

func (c *Client) logSubscribeResult(topic string, token pahomqtt.Token) {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return
	}
	if err := token.Error(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("re-subscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *Client) publishStatus(payload string) pahomqtt.Token {
	if c.opts.StatusTopic == "" {
		return nil
	}
	return c.client.Publish(c.opts.StatusTopic, c.opts.QoS, true, payload)
}

// Close publishes a graceful offline status when connected and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		if token := c.publishStatus(buildOfflinePayload(c.clientID)); token != nil {
			token.WaitTimeout(defaultPublishTimeout)
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.stateMu.Lock()
	c.connected = false
	c.observer = nil
	c.stateMu.Unlock()

	return nil
}

// HealthCheck returns ErrNotConnected while paho is between connections.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (c *Client) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets the logger for handler failures and connection loss.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts handler to paho and keeps a panicking handler from
// taking the client's router goroutine down.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
