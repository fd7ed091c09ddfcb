package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Config is the root configuration structure shared by the sensor node and
// the collector. Each binary reads the sections it needs.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Collector CollectorConfig `yaml:"collector"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the sensor node.
type DeviceConfig struct {
	// ClientIDPrefix is followed by a random decimal number on every
	// connect, e.g. "zephyr_mqtt_client_2735614211".
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTConfig contains MQTT broker connection settings for the sensor node.
// Timeouts are in seconds.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`

	// KeepAlive is sent in CONNECT. 0 disables keep-alive pings.
	KeepAlive      int `yaml:"keep_alive"`
	ConnectTimeout int `yaml:"connect_timeout"`
	AckTimeout     int `yaml:"ack_timeout"`
	PingTimeout    int `yaml:"ping_timeout"`

	// MaxInflight bounds outstanding SUBSCRIBE and QoS 1/2 PUBLISH requests.
	MaxInflight int `yaml:"max_inflight"`

	Buffers   MQTTBufferConfig    `yaml:"buffers"`
	Subscribe MQTTSubscribeConfig `yaml:"subscribe"`
	Publish   MQTTPublishConfig   `yaml:"publish"`
	Will      MQTTWillConfig      `yaml:"will"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTBufferConfig sizes the fixed receive and transmit buffers in bytes.
// No single packet may exceed them.
type MQTTBufferConfig struct {
	RX int `yaml:"rx"`
	TX int `yaml:"tx"`
}

// MQTTSubscribeConfig is the node's single subscription.
type MQTTSubscribeConfig struct {
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`
}

// MQTTPublishConfig is where telemetry samples go.
type MQTTPublishConfig struct {
	Topic  string `yaml:"topic"`
	QoS    int    `yaml:"qos"`
	Retain bool   `yaml:"retain"`
}

// MQTTWillConfig is the Last Will and Testament carried in CONNECT.
type MQTTWillConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds. MaxAttempts 0 means unlimited.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
	MaxAttempts  int  `yaml:"max_attempts"`
}

// TelemetryConfig controls the synthetic sensor.
type TelemetryConfig struct {
	// Interval is the publish cadence.
	Interval time.Duration `yaml:"interval"`

	// PollInterval bounds each wait for inbound traffic.
	PollInterval time.Duration `yaml:"poll_interval"`

	Temperature RangeConfig `yaml:"temperature"`
	Humidity    RangeConfig `yaml:"humidity"`
}

// RangeConfig is a half-open value range.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// CollectorConfig contains settings for the telemetry collector.
type CollectorConfig struct {
	// ClientID is suffixed with a random UUID fragment at startup so
	// several collectors can share a broker.
	ClientID string `yaml:"client_id"`

	// Topic is the subscription filter for device telemetry.
	Topic string `yaml:"topic"`
	QoS   int    `yaml:"qos"`

	// StatusTopic receives a retained "online" message and is the
	// collector's LWT topic ("offline").
	StatusTopic string `yaml:"status_topic"`

	History HistoryConfig `yaml:"history"`
}

// HistoryConfig contains SQLite sample history settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention is how long samples are kept; 0 keeps them forever.
	// Expired rows are deleted every PruneInterval.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds

	// Measurement and TopicTag name the point written per sample.
	Measurement string `yaml:"measurement"`
	TopicTag    string `yaml:"topic_tag"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes, ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_MQTT_HOST, GRAYLOGIC_HISTORY_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied, for running without a config file.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ClientIDPrefix: "zephyr_mqtt_client_",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			KeepAlive:      60,
			ConnectTimeout: 5,
			AckTimeout:     30,
			PingTimeout:    10,
			MaxInflight:    8,
			Buffers: MQTTBufferConfig{
				RX: 256,
				TX: 256,
			},
			Subscribe: MQTTSubscribeConfig{
				Topic: "rtest",
				QoS:   1,
			},
			Publish: MQTTPublishConfig{
				Topic: "sensors/temperature_humidity",
				QoS:   2,
			},
			Will: MQTTWillConfig{
				Topic:   "devices/sensornode/status",
				Payload: "offline",
				QoS:     1,
				Retain:  true,
			},
			Reconnect: MQTTReconnectConfig{
				Enabled:      true,
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Telemetry: TelemetryConfig{
			Interval:     time.Second,
			PollInterval: 100 * time.Millisecond,
			Temperature:  RangeConfig{Min: 20, Max: 35},
			Humidity:     RangeConfig{Min: 30, Max: 100},
		},
		Collector: CollectorConfig{
			ClientID:    "graylogic-collector",
			Topic:       "sensors/#",
			QoS:         1,
			StatusTopic: "graylogic/collector/status",
			History: HistoryConfig{
				Enabled:       true,
				Path:          "./data/telemetry.db",
				WALMode:       true,
				BusyTimeout:   5,
				Retention:     30 * 24 * time.Hour,
				PruneInterval: time.Hour,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "graylogic",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
			Measurement:   "sensor_telemetry",
			TopicTag:      "topic",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing GRAYLOGIC_MQTT_PORT %q: %w", v, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Collector history
	if v := os.Getenv("GRAYLOGIC_HISTORY_PATH"); v != "" {
		cfg.Collector.History.Path = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device
	if c.Device.ClientIDPrefix == "" {
		errs = append(errs, "device.client_id_prefix is required")
	}

	// MQTT broker
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Auth.Password != "" && c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.password requires mqtt.auth.username")
	}

	// MQTT session
	if c.MQTT.KeepAlive < 0 || c.MQTT.KeepAlive > 65535 {
		errs = append(errs, "mqtt.keep_alive must be between 0 and 65535")
	}
	if c.MQTT.ConnectTimeout < 1 {
		errs = append(errs, "mqtt.connect_timeout must be at least 1")
	}
	if c.MQTT.AckTimeout < 1 {
		errs = append(errs, "mqtt.ack_timeout must be at least 1")
	}
	if c.MQTT.PingTimeout < 1 {
		errs = append(errs, "mqtt.ping_timeout must be at least 1")
	}
	if c.MQTT.MaxInflight < 1 || c.MQTT.MaxInflight > 65535 {
		errs = append(errs, "mqtt.max_inflight must be between 1 and 65535")
	}
	if c.MQTT.Buffers.RX < minBufferSize {
		errs = append(errs, fmt.Sprintf("mqtt.buffers.rx must be at least %d bytes", minBufferSize))
	}
	if msg := c.txBufferProblem(); msg != "" {
		errs = append(errs, msg)
	}

	// MQTT topics
	if c.MQTT.Subscribe.Topic != "" {
		if err := packet.ValidateTopicFilter(c.MQTT.Subscribe.Topic); err != nil {
			errs = append(errs, fmt.Sprintf("mqtt.subscribe.topic: %v", err))
		}
	}
	if !validQoS(c.MQTT.Subscribe.QoS) {
		errs = append(errs, "mqtt.subscribe.qos must be 0, 1, or 2")
	}
	if err := packet.ValidateTopicName([]byte(c.MQTT.Publish.Topic)); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt.publish.topic: %v", err))
	}
	if !validQoS(c.MQTT.Publish.QoS) {
		errs = append(errs, "mqtt.publish.qos must be 0, 1, or 2")
	}
	if c.MQTT.Will.Enabled {
		if err := packet.ValidateTopicName([]byte(c.MQTT.Will.Topic)); err != nil {
			errs = append(errs, fmt.Sprintf("mqtt.will.topic: %v", err))
		}
		if !validQoS(c.MQTT.Will.QoS) {
			errs = append(errs, "mqtt.will.qos must be 0, 1, or 2")
		}
	}

	// MQTT reconnect
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 || c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect values must not be negative")
	}
	if c.MQTT.Reconnect.MaxDelay > 0 && c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}

	// Telemetry
	if c.Telemetry.Interval <= 0 {
		errs = append(errs, "telemetry.interval must be positive")
	}
	if c.Telemetry.PollInterval <= 0 {
		errs = append(errs, "telemetry.poll_interval must be positive")
	}
	if c.Telemetry.Temperature.Max <= c.Telemetry.Temperature.Min {
		errs = append(errs, "telemetry.temperature.max must be greater than min")
	}
	if c.Telemetry.Humidity.Max <= c.Telemetry.Humidity.Min {
		errs = append(errs, "telemetry.humidity.max must be greater than min")
	}

	// Collector
	if c.Collector.Topic == "" {
		errs = append(errs, "collector.topic is required")
	} else if err := packet.ValidateTopicFilter(c.Collector.Topic); err != nil {
		errs = append(errs, fmt.Sprintf("collector.topic: %v", err))
	}
	if !validQoS(c.Collector.QoS) {
		errs = append(errs, "collector.qos must be 0, 1, or 2")
	}
	if c.MQTT.Will.Enabled && c.Collector.Topic != "" && packet.MatchTopic(c.Collector.Topic, c.MQTT.Will.Topic) {
		errs = append(errs, fmt.Sprintf("mqtt.will.topic %q falls under collector.topic %q", c.MQTT.Will.Topic, c.Collector.Topic))
	}
	if c.Collector.History.Enabled && c.Collector.History.Path == "" {
		errs = append(errs, "collector.history.path is required when history is enabled")
	}
	if c.Collector.History.Retention < 0 {
		errs = append(errs, "collector.history.retention must not be negative")
	}
	if c.Collector.History.Retention > 0 && c.Collector.History.PruneInterval <= 0 {
		errs = append(errs, "collector.history.prune_interval must be positive when retention is set")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

const (
	// minBufferSize is the floor for either buffer.
	minBufferSize = 64

	// maxClientIDSuffix is the widest random suffix the session appends.
	maxClientIDSuffix = "4294967295"
)

// txBufferProblem checks that the transmit buffer holds the largest
// CONNECT the device can send and a telemetry PUBLISH of MaxPayloadSize.
func (c *Config) txBufferProblem() string {
	tx := c.MQTT.Buffers.TX
	if tx < minBufferSize {
		return fmt.Sprintf("mqtt.buffers.tx must be at least %d bytes", minBufferSize)
	}

	if validQoS(c.MQTT.Publish.QoS) {
		need := packet.PublishOverhead(c.MQTT.Publish.Topic, packet.QoS(c.MQTT.Publish.QoS)) + telemetry.MaxPayloadSize //nolint:gosec // validated 0-2
		if tx < need {
			return fmt.Sprintf("mqtt.buffers.tx of %d bytes cannot carry a telemetry publish (need %d)", tx, need)
		}
	}

	connect := &packet.Connect{
		ClientID:     c.Device.ClientIDPrefix + maxClientIDSuffix,
		CleanSession: true,
		Username:     c.MQTT.Auth.Username,
		Password:     []byte(c.MQTT.Auth.Password),
	}
	if c.MQTT.Will.Enabled && validQoS(c.MQTT.Will.QoS) {
		connect.Will = &packet.Will{
			Topic:   c.MQTT.Will.Topic,
			Payload: []byte(c.MQTT.Will.Payload),
			QoS:     packet.QoS(c.MQTT.Will.QoS), //nolint:gosec // validated 0-2
			Retain:  c.MQTT.Will.Retain,
		}
	}
	if _, err := packet.Encode(packet.NewBuffer(tx), connect); errors.Is(err, packet.ErrBufferTooSmall) {
		return fmt.Sprintf("mqtt.buffers.tx of %d bytes cannot carry CONNECT", tx)
	}
	return ""
}

func validQoS(q int) bool {
	return q >= 0 && q <= 2
}

// BrokerAddress returns the broker as "host:port".
func (c *Config) BrokerAddress() string {
	return net.JoinHostPort(c.MQTT.Broker.Host, strconv.Itoa(c.MQTT.Broker.Port))
}

// GetKeepAlive returns the keep-alive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetConnectTimeout returns the CONNACK deadline as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetAckTimeout returns the pending request lifetime as a Duration.
func (c *Config) GetAckTimeout() time.Duration {
	return time.Duration(c.MQTT.AckTimeout) * time.Second
}

// GetPingTimeout returns the PINGRESP deadline as a Duration.
func (c *Config) GetPingTimeout() time.Duration {
	return time.Duration(c.MQTT.PingTimeout) * time.Second
}

// GetReconnectDelays returns the initial and maximum reconnect delays.
func (c *Config) GetReconnectDelays() (initial, maxDelay time.Duration) {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second,
		time.Duration(c.MQTT.Reconnect.MaxDelay) * time.Second
}
