package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  client_id_prefix: "bench_node_"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  keep_alive: 30
  max_inflight: 4
  buffers:
    rx: 512
    tx: 512
  subscribe:
    topic: "rtest"
    qos: 1
  publish:
    topic: "sensors/bench"
    qos: 2
  reconnect:
    enabled: false
telemetry:
  interval: 2s
  poll_interval: 50ms
collector:
  history:
    path: "/tmp/telemetry.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ClientIDPrefix != "bench_node_" {
		t.Errorf("Device.ClientIDPrefix = %q, want %q", cfg.Device.ClientIDPrefix, "bench_node_")
	}
	if cfg.BrokerAddress() != "broker.local:1884" {
		t.Errorf("BrokerAddress() = %q, want %q", cfg.BrokerAddress(), "broker.local:1884")
	}
	if cfg.MQTT.Buffers.RX != 512 || cfg.MQTT.Buffers.TX != 512 {
		t.Errorf("MQTT.Buffers = %+v, want 512/512", cfg.MQTT.Buffers)
	}
	if cfg.MQTT.Publish.Topic != "sensors/bench" {
		t.Errorf("MQTT.Publish.Topic = %q", cfg.MQTT.Publish.Topic)
	}
	if cfg.MQTT.Reconnect.Enabled {
		t.Error("MQTT.Reconnect.Enabled = true, want false from file")
	}
	if cfg.Telemetry.Interval != 2*time.Second {
		t.Errorf("Telemetry.Interval = %v, want 2s", cfg.Telemetry.Interval)
	}
	if cfg.Telemetry.PollInterval != 50*time.Millisecond {
		t.Errorf("Telemetry.PollInterval = %v, want 50ms", cfg.Telemetry.PollInterval)
	}

	// Untouched sections keep their defaults.
	if cfg.MQTT.AckTimeout != 30 {
		t.Errorf("MQTT.AckTimeout = %d, want default 30", cfg.MQTT.AckTimeout)
	}
	if cfg.Telemetry.Humidity.Max != 100 {
		t.Errorf("Telemetry.Humidity.Max = %v, want default 100", cfg.Telemetry.Humidity.Max)
	}
}

// TestLoad_ShippedConfig keeps configs/sensornode.yaml in step with the
// built-in defaults.
func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "sensornode.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := defaultConfig()
	if cfg.MQTT != want.MQTT {
		t.Errorf("mqtt section = %+v, want %+v", cfg.MQTT, want.MQTT)
	}
	if cfg.Telemetry != want.Telemetry {
		t.Errorf("telemetry section = %+v, want %+v", cfg.Telemetry, want.Telemetry)
	}
	if cfg.Collector != want.Collector {
		t.Errorf("collector section = %+v, want %+v", cfg.Collector, want.Collector)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  publish:
    topic: "sensors/#"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for wildcard publish topic, got nil")
	}
	if !strings.Contains(err.Error(), "mqtt.publish.topic") {
		t.Errorf("Load() error = %v, want it to name mqtt.publish.topic", err)
	}
}

func TestLoad_InvalidPortOverride(t *testing.T) {
	t.Setenv("GRAYLOGIC_MQTT_PORT", "not-a-port")

	_, err := Load(writeConfig(t, "device:\n  client_id_prefix: x\n"))
	if err == nil {
		t.Error("Load() expected error for bad GRAYLOGIC_MQTT_PORT, got nil")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GRAYLOGIC_MQTT_HOST", "10.0.0.2")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "10.0.0.2" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing client id prefix",
			mutate:  func(c *Config) { c.Device.ClientIDPrefix = "" },
			wantErr: "device.client_id_prefix",
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "password without username",
			mutate:  func(c *Config) { c.MQTT.Auth.Password = "secret" },
			wantErr: "mqtt.auth.password",
		},
		{
			name:    "keep alive too large",
			mutate:  func(c *Config) { c.MQTT.KeepAlive = 70000 },
			wantErr: "mqtt.keep_alive",
		},
		{
			name:    "zero inflight",
			mutate:  func(c *Config) { c.MQTT.MaxInflight = 0 },
			wantErr: "mqtt.max_inflight",
		},
		{
			name:    "tiny rx buffer",
			mutate:  func(c *Config) { c.MQTT.Buffers.RX = 16 },
			wantErr: "mqtt.buffers.rx",
		},
		{
			name:    "tiny tx buffer",
			mutate:  func(c *Config) { c.MQTT.Buffers.TX = 16 },
			wantErr: "mqtt.buffers.tx",
		},
		{
			name:    "tx buffer cannot carry telemetry publish",
			mutate:  func(c *Config) { c.MQTT.Buffers.TX = 64 },
			wantErr: "cannot carry a telemetry publish",
		},
		{
			name: "tx buffer cannot carry connect with will",
			mutate: func(c *Config) {
				c.MQTT.Buffers.TX = 128
				c.MQTT.Will.Enabled = true
				c.MQTT.Will.Topic = "devices/" + strings.Repeat("x", 100)
			},
			wantErr: "cannot carry CONNECT",
		},
		{
			name:    "malformed subscribe filter",
			mutate:  func(c *Config) { c.MQTT.Subscribe.Topic = "a/#/b" },
			wantErr: "mqtt.subscribe.topic",
		},
		{
			name:    "invalid subscribe QoS",
			mutate:  func(c *Config) { c.MQTT.Subscribe.QoS = 3 },
			wantErr: "mqtt.subscribe.qos",
		},
		{
			name:    "empty publish topic",
			mutate:  func(c *Config) { c.MQTT.Publish.Topic = "" },
			wantErr: "mqtt.publish.topic",
		},
		{
			name:    "invalid publish QoS",
			mutate:  func(c *Config) { c.MQTT.Publish.QoS = -1 },
			wantErr: "mqtt.publish.qos",
		},
		{
			name: "will with wildcard topic",
			mutate: func(c *Config) {
				c.MQTT.Will.Enabled = true
				c.MQTT.Will.Topic = "sensors/+"
			},
			wantErr: "mqtt.will.topic",
		},
		{
			name: "will under collector filter",
			mutate: func(c *Config) {
				c.MQTT.Will.Enabled = true
				c.MQTT.Will.Topic = "sensors/status"
			},
			wantErr: "falls under collector.topic",
		},
		{
			name:   "default will enabled",
			mutate: func(c *Config) { c.MQTT.Will.Enabled = true },
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Collector.History.Retention = -time.Hour },
			wantErr: "collector.history.retention",
		},
		{
			name:    "retention without prune interval",
			mutate:  func(c *Config) { c.Collector.History.PruneInterval = 0 },
			wantErr: "collector.history.prune_interval",
		},
		{
			name: "retention disabled",
			mutate: func(c *Config) {
				c.Collector.History.Retention = 0
				c.Collector.History.PruneInterval = 0
			},
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *Config) { c.MQTT.Reconnect.InitialDelay = 30; c.MQTT.Reconnect.MaxDelay = 10 },
			wantErr: "mqtt.reconnect.max_delay",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Telemetry.Interval = 0 },
			wantErr: "telemetry.interval",
		},
		{
			name:    "inverted temperature range",
			mutate:  func(c *Config) { c.Telemetry.Temperature = RangeConfig{Min: 30, Max: 20} },
			wantErr: "telemetry.temperature",
		},
		{
			name:    "history without path",
			mutate:  func(c *Config) { c.Collector.History.Path = "" },
			wantErr: "collector.history.path",
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name:    "file logging without path",
			mutate:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "logging.file.path",
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Logging.Output = "syslog" },
			wantErr: "logging.output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want one naming %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to name %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.Broker.Host = ""
	cfg.MQTT.Publish.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.HasPrefix(err.Error(), "configuration errors: ") {
		t.Errorf("Validate() error = %q", err)
	}
	if got := strings.Count(err.Error(), "; "); got != 1 {
		t.Errorf("Validate() reported %d separators, want 1 (two errors)", got)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			KeepAlive:      60,
			ConnectTimeout: 5,
			AckTimeout:     30,
			PingTimeout:    10,
			Reconnect:      MQTTReconnectConfig{InitialDelay: 2, MaxDelay: 90},
		},
	}

	if got := cfg.GetKeepAlive(); got != time.Minute {
		t.Errorf("GetKeepAlive() = %v, want 1m", got)
	}
	if got := cfg.GetConnectTimeout(); got != 5*time.Second {
		t.Errorf("GetConnectTimeout() = %v, want 5s", got)
	}
	if got := cfg.GetAckTimeout(); got != 30*time.Second {
		t.Errorf("GetAckTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetPingTimeout(); got != 10*time.Second {
		t.Errorf("GetPingTimeout() = %v, want 10s", got)
	}
	initial, maxDelay := cfg.GetReconnectDelays()
	if initial != 2*time.Second || maxDelay != 90*time.Second {
		t.Errorf("GetReconnectDelays() = %v, %v, want 2s, 1m30s", initial, maxDelay)
	}
}

func TestBrokerAddress_IPv6(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{Broker: MQTTBrokerConfig{Host: "::1", Port: 1883}}}
	if got := cfg.BrokerAddress(); got != "[::1]:1883" {
		t.Errorf("BrokerAddress() = %q, want %q", got, "[::1]:1883")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_PORT", "8883")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_HISTORY_PATH", "/custom/telemetry.db")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Collector.History.Path != "/custom/telemetry.db" {
		t.Errorf("Collector.History.Path = %q, want %q", cfg.Collector.History.Path, "/custom/telemetry.db")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Device.ClientIDPrefix != "zephyr_mqtt_client_" {
		t.Errorf("defaultConfig Device.ClientIDPrefix = %q", cfg.Device.ClientIDPrefix)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Subscribe.Topic != "rtest" || cfg.MQTT.Subscribe.QoS != 1 {
		t.Errorf("defaultConfig MQTT.Subscribe = %+v, want rtest QoS 1", cfg.MQTT.Subscribe)
	}
	if cfg.MQTT.Publish.Topic != "sensors/temperature_humidity" || cfg.MQTT.Publish.QoS != 2 {
		t.Errorf("defaultConfig MQTT.Publish = %+v", cfg.MQTT.Publish)
	}
	if cfg.Telemetry.Interval != time.Second {
		t.Errorf("defaultConfig Telemetry.Interval = %v, want 1s", cfg.Telemetry.Interval)
	}
	if !cfg.MQTT.Reconnect.Enabled {
		t.Error("defaultConfig should enable reconnect")
	}
}
