// Sensor node: a simulated temperature/humidity device that publishes
// telemetry to an MQTT broker over a single cooperative session and
// reconnects with backoff when the connection drops.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/event"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/session"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/transport"
	"github.com/nerrad567/gray-logic-sensor/internal/node"
	"github.com/nerrad567/gray-logic-sensor/internal/rng"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "sensornode"
	defaultConfigPath = "configs/sensornode.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the device stack and blocks until ctx is cancelled or the node
// gives up reconnecting.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting sensor node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, path, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, serviceName, version)
	defer log.Close() //nolint:errcheck // nothing to do on shutdown

	src, err := rng.New()
	if err != nil {
		return fmt.Errorf("seeding random source: %w", err)
	}

	events := event.NewDispatcher()
	events.SetLogger(log)

	tcp := transport.NewTCP(transport.Config{
		ConnectTimeout: cfg.GetConnectTimeout(),
		ReadBufferSize: cfg.MQTT.Buffers.RX,
	})

	sess := session.New(sessionConfig(cfg), tcp, src, events)
	sess.SetLogger(log.With("component", "session"))

	gen := telemetry.NewSimulator(src,
		telemetry.Range{Min: cfg.Telemetry.Temperature.Min, Max: cfg.Telemetry.Temperature.Max},
		telemetry.Range{Min: cfg.Telemetry.Humidity.Min, Max: cfg.Telemetry.Humidity.Max},
	)

	n := node.New(nodeConfig(cfg), sess, gen)
	n.SetLogger(log.With("component", "node"))
	events.Register(n.HandleEvent)

	log.Info("connecting to broker",
		"broker", cfg.BrokerAddress(),
		"publish_topic", cfg.MQTT.Publish.Topic,
		"subscribe_topic", cfg.MQTT.Subscribe.Topic,
	)

	runErr := n.Run(ctx)

	stats := n.Stats()
	sessStats := sess.Stats()
	log.Info("sensor node stopped",
		"publish_attempts", stats.PublishAttempts,
		"publish_failures", stats.PublishFailures,
		"messages_received", stats.MessagesReceived,
		"reconnects", stats.Reconnects,
		"messages_published", sessStats.MessagesPublished,
	)

	return runErr
}

// loadConfig reads GRAYLOGIC_CONFIG if set, else the default path when it
// exists, else the built-in defaults.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.Load(defaultConfigPath)
		return cfg, defaultConfigPath, err
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, defaultConfigPath, err
	}

	cfg, err := config.Default()
	return cfg, "(built-in defaults)", err
}

// sessionConfig maps the mqtt and device sections onto a session config.
func sessionConfig(cfg *config.Config) session.Config {
	keepAlive := cfg.GetKeepAlive()
	if keepAlive == 0 {
		keepAlive = -1 // zero in the file means "no keep-alive"
	}

	sc := session.Config{
		Address:        cfg.BrokerAddress(),
		ClientIDPrefix: cfg.Device.ClientIDPrefix,
		Username:       cfg.MQTT.Auth.Username,
		Password:       cfg.MQTT.Auth.Password,
		KeepAlive:      keepAlive,
		ConnectTimeout: cfg.GetConnectTimeout(),
		AckTimeout:     cfg.GetAckTimeout(),
		PingTimeout:    cfg.GetPingTimeout(),
		MaxInflight:    cfg.MQTT.MaxInflight,
		RxBufferSize:   cfg.MQTT.Buffers.RX,
		TxBufferSize:   cfg.MQTT.Buffers.TX,
	}

	if w := cfg.MQTT.Will; w.Enabled {
		sc.Will = &packet.Will{
			Topic:   w.Topic,
			Payload: []byte(w.Payload),
			QoS:     packet.QoS(w.QoS), //nolint:gosec // validated 0-2 by config
			Retain:  w.Retain,
		}
	}
	return sc
}

// nodeConfig maps the mqtt topics and telemetry cadence onto a node config.
func nodeConfig(cfg *config.Config) node.Config {
	initial, maxDelay := cfg.GetReconnectDelays()

	return node.Config{
		SubscribeTopic: cfg.MQTT.Subscribe.Topic,
		SubscribeQoS:   packet.QoS(cfg.MQTT.Subscribe.QoS), //nolint:gosec // validated 0-2 by config
		PublishTopic:   cfg.MQTT.Publish.Topic,
		PublishQoS:     packet.QoS(cfg.MQTT.Publish.QoS), //nolint:gosec // validated 0-2 by config
		PublishRetain:  cfg.MQTT.Publish.Retain,
		Interval:       cfg.Telemetry.Interval,
		PollInterval:   cfg.Telemetry.PollInterval,
		Reconnect: node.ReconnectPolicy{
			Enabled:      cfg.MQTT.Reconnect.Enabled,
			InitialDelay: initial,
			MaxDelay:     maxDelay,
			MaxAttempts:  cfg.MQTT.Reconnect.MaxAttempts,
		},
	}
}
