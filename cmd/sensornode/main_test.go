package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensor/internal/mqtt/packet"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
	"github.com/nerrad567/gray-logic-sensor/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensornode.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with a missing config file.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/sensornode.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidTopic verifies validation errors stop startup.
func TestRun_InvalidTopic(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", writeConfig(t, `
mqtt:
  publish:
    topic: "sensors/+/bad"
`))

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should reject a wildcard publish topic")
	}
}

// TestRun_NoReconnect verifies run returns an error when the broker is
// unreachable and reconnection is disabled.
func TestRun_NoReconnect(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", writeConfig(t, `
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
  connect_timeout: 1
  reconnect:
    enabled: false
logging:
  level: error
`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the broker refuses and reconnect is off")
	}
}

// TestRun_PublishesToBroker runs the full node against an in-process broker
// and watches its telemetry with the collector's MQTT client.
func TestRun_PublishesToBroker(t *testing.T) {
	b := testutil.StartBroker(t)

	t.Setenv("GRAYLOGIC_CONFIG", writeConfig(t, fmt.Sprintf(`
mqtt:
  broker:
    host: %q
    port: %d
  publish:
    topic: "sensors/test_node"
    qos: 1
telemetry:
  interval: 50ms
  poll_interval: 10ms
logging:
  level: error
`, b.Host, b.Port)))

	watcher, err := mqtt.Connect(mqtt.Options{
		Broker:   config.MQTTBrokerConfig{Host: b.Host, Port: b.Port},
		ClientID: "watcher",
	})
	if err != nil {
		t.Fatalf("mqtt.Connect() error = %v", err)
	}
	defer watcher.Close()

	var received, invalid atomic.Int32
	err = watcher.Subscribe("sensors/#", 1, func(_ string, payload []byte) error {
		if _, err := telemetry.ParsePayload(payload); err != nil {
			invalid.Add(1)
			return err
		}
		received.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	deadline := time.After(10 * time.Second)
	for received.Load() < 3 {
		select {
		case err := <-done:
			t.Fatalf("run() returned early: %v", err)
		case <-deadline:
			t.Fatalf("timeout: received %d samples", received.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() after cancel error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if invalid.Load() != 0 {
		t.Errorf("received %d unparseable payloads", invalid.Load())
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.MQTT.Auth = config.MQTTAuthConfig{Username: "sensor", Password: "secret"}

	sc := sessionConfig(cfg)

	if sc.Address != "localhost:1883" {
		t.Errorf("Address = %q, want localhost:1883", sc.Address)
	}
	if sc.ClientIDPrefix != "zephyr_mqtt_client_" {
		t.Errorf("ClientIDPrefix = %q", sc.ClientIDPrefix)
	}
	if sc.Username != "sensor" || sc.Password != "secret" {
		t.Errorf("credentials = %q/%q", sc.Username, sc.Password)
	}
	if sc.KeepAlive != 60*time.Second {
		t.Errorf("KeepAlive = %v, want 60s", sc.KeepAlive)
	}
	if sc.ConnectTimeout != 5*time.Second || sc.AckTimeout != 30*time.Second || sc.PingTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v/%v", sc.ConnectTimeout, sc.AckTimeout, sc.PingTimeout)
	}
	if sc.RxBufferSize != 256 || sc.TxBufferSize != 256 || sc.MaxInflight != 8 {
		t.Errorf("buffers/inflight = %d/%d/%d", sc.RxBufferSize, sc.TxBufferSize, sc.MaxInflight)
	}
	if sc.Will != nil {
		t.Errorf("Will = %+v, want nil when disabled", sc.Will)
	}
}

func TestSessionConfig_KeepAliveDisabled(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.MQTT.KeepAlive = 0

	if got := sessionConfig(cfg).KeepAlive; got >= 0 {
		t.Errorf("KeepAlive = %v, want negative (disabled)", got)
	}
}

func TestSessionConfig_Will(t *testing.T) {
	cfg := defaultTestConfig(t)
	cfg.MQTT.Will.Enabled = true

	w := sessionConfig(cfg).Will
	if w == nil {
		t.Fatal("Will = nil, want configured will")
	}
	if w.Topic != "devices/sensornode/status" || string(w.Payload) != "offline" || w.QoS != packet.QoS1 || !w.Retain {
		t.Errorf("Will = %+v", w)
	}
}

func TestNodeConfig(t *testing.T) {
	cfg := defaultTestConfig(t)

	nc := nodeConfig(cfg)

	if nc.SubscribeTopic != "rtest" || nc.SubscribeQoS != packet.QoS1 {
		t.Errorf("subscribe = %q qos %d", nc.SubscribeTopic, nc.SubscribeQoS)
	}
	if nc.PublishTopic != "sensors/temperature_humidity" || nc.PublishQoS != packet.QoS2 {
		t.Errorf("publish = %q qos %d", nc.PublishTopic, nc.PublishQoS)
	}
	if nc.Interval != time.Second || nc.PollInterval != 100*time.Millisecond {
		t.Errorf("cadence = %v/%v", nc.Interval, nc.PollInterval)
	}
	if !nc.Reconnect.Enabled || nc.Reconnect.InitialDelay != time.Second || nc.Reconnect.MaxDelay != time.Minute {
		t.Errorf("reconnect = %+v", nc.Reconnect)
	}
}

func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config.Default() error = %v", err)
	}
	return cfg
}
