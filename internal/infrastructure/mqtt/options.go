package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDSuffixLen is how much of a UUID is appended to the client ID.
	clientIDSuffixLen = 8
)

// Options selects the broker, identity and status topic of a Client.
type Options struct {
	// Broker and Auth come from the shared mqtt section. Reconnect delays
	// drive paho's own auto-reconnect.
	Broker    config.MQTTBrokerConfig
	Auth      config.MQTTAuthConfig
	Reconnect config.MQTTReconnectConfig

	// ClientID is suffixed with a UUID fragment.
	ClientID string

	// StatusTopic receives retained online/offline messages and is the LWT
	// topic. Empty disables status publishing.
	StatusTopic string

	// QoS is used for status messages.
	QoS byte
}

// OptionsFromConfig builds collector Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Broker:      cfg.MQTT.Broker,
		Auth:        cfg.MQTT.Auth,
		Reconnect:   cfg.MQTT.Reconnect,
		ClientID:    cfg.Collector.ClientID,
		StatusTopic: cfg.Collector.StatusTopic,
		QoS:         byte(cfg.Collector.QoS), //nolint:gosec // validated 0-2 by config
	}
}

// uniqueClientID appends a random suffix so several collectors can share a
// broker without taking over each other's session.
func uniqueClientID(base string) string {
	suffix := uuid.NewString()[:clientIDSuffixLen]
	if base == "" {
		return "collector-" + suffix
	}
	return base + "-" + suffix
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL (tcp://host:port)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect with exponential backoff
//   - Clean session mode
func buildClientOptions(o Options, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", o.Broker.Host, o.Broker.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(clientID)

	if o.Auth.Username != "" {
		opts.SetUsername(o.Auth.Username)
		opts.SetPassword(o.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Initial connect failures are reported to the caller; only established
	// connections are retried in the background.
	opts.SetAutoReconnect(o.Reconnect.Enabled)
	if o.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(o.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The LWT message is published by the broker if the collector disconnects
// unexpectedly (crash, network failure, etc.).
//
// QoS: 1, Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	if topic == "" {
		return
	}
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(topic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
