// Package collector turns telemetry messages received over MQTT into stored
// samples.
//
// It is the bench-side counterpart of the sensor node: every payload on the
// subscribed filter is parsed with telemetry.ParsePayload, appended to the
// SQLite history and forwarded to InfluxDB. Either sink may be nil.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// historyTimeout bounds a single history insert.
const historyTimeout = 5 * time.Second

// ErrNoSubscriber is returned by Start when no MQTT client is given.
var ErrNoSubscriber = errors.New("collector: subscriber is nil")

// Subscriber is the part of the MQTT client the collector needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// HistoryStore records samples locally.
type HistoryStore interface {
	Record(ctx context.Context, topic string, sample telemetry.Sample, at time.Time) error
}

// MetricsWriter forwards samples to a time-series database. Writes are
// queued; WriteSample reports false when the sample was dropped instead.
type MetricsWriter interface {
	WriteSample(topic string, sample telemetry.Sample, at time.Time) bool
}

// Logger is the structured logger used by the collector.
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

// Stats is a snapshot of the collector's counters.
type Stats struct {
	// Messages seen by HandleMessage.
	Received      uint64
	Stored        uint64
	ParseErrors   uint64
	HistoryErrors uint64

	// MetricsDropped counts samples the metrics writer refused.
	// MetricsErrors counts failed batches reported by HandleMetricsError.
	MetricsDropped uint64
	MetricsErrors  uint64

	// Broker outages, as seen through ConnectionLost/ConnectionRestored.
	Disconnects uint64
	Reconnects  uint64
	Downtime    time.Duration

	// Pruned is the number of history rows removed by RunRetention.
	Pruned uint64
}

// Collector handles telemetry messages. HandleMessage is safe for concurrent
// use; paho calls it from its own goroutines.
type Collector struct {
	history HistoryStore
	metrics MetricsWriter
	logger  Logger
	now     func() time.Time

	received       atomic.Uint64
	stored         atomic.Uint64
	parseErrors    atomic.Uint64
	historyErrors  atomic.Uint64
	metricsDropped atomic.Uint64
	metricsErrors  atomic.Uint64
	disconnects    atomic.Uint64
	reconnects     atomic.Uint64
	downtime       atomic.Int64 // nanoseconds
	pruned         atomic.Uint64
}

// New creates a Collector. history and metrics may each be nil.
func New(history HistoryStore, metrics MetricsWriter) *Collector {
	return &Collector{
		history: history,
		metrics: metrics,
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger replaces the logger. Call before Start.
func (c *Collector) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Start subscribes HandleMessage to filter.
func (c *Collector) Start(sub Subscriber, filter string, qos byte) error {
	if sub == nil {
		return ErrNoSubscriber
	}
	if err := sub.Subscribe(filter, qos, c.HandleMessage); err != nil {
		return fmt.Errorf("collector: subscribing to %q: %w", filter, err)
	}
	return nil
}

// HandleMessage parses one telemetry payload and stores it.
//
// Unparseable payloads are counted and logged, not returned, so a
// misbehaving device cannot flood the client's error log. A history failure
// is returned after the metrics write has been attempted.
func (c *Collector) HandleMessage(topic string, payload []byte) error {
	c.received.Add(1)
	at := c.now()

	sample, err := telemetry.ParsePayload(payload)
	if err != nil {
		c.parseErrors.Add(1)
		c.logger.Warn("unparseable telemetry payload",
			"topic", topic,
			"payload", string(payload),
			"error", err,
		)
		return nil
	}

	if c.metrics != nil && !c.metrics.WriteSample(topic, sample, at) {
		c.metricsDropped.Add(1)
	}

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		if err := c.history.Record(ctx, topic, sample, at); err != nil {
			c.historyErrors.Add(1)
			return fmt.Errorf("recording sample: %w", err)
		}
	}

	c.stored.Add(1)
	c.logger.Debug("telemetry collected",
		"topic", topic,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
	)
	return nil
}

// HandleMetricsError records one failed metrics batch. It is the callback
// handed to the metrics writer.
func (c *Collector) HandleMetricsError(err error) {
	c.metricsErrors.Add(1)
	c.logger.Error("metrics write failed", "error", err, "failed_batches", c.metricsErrors.Load())
}

// ConnectionLost records a broker outage. Messages published meanwhile at
// QoS 0 are gone; QoS 1 and 2 ones are only kept by brokers holding a
// persistent session, which the collector does not request.
func (c *Collector) ConnectionLost(err error) {
	c.disconnects.Add(1)
	c.logger.Warn("telemetry feed interrupted", "error", err, "disconnects", c.disconnects.Load())
}

// ConnectionRestored records the end of an outage that lasted downtime.
func (c *Collector) ConnectionRestored(downtime time.Duration) {
	c.reconnects.Add(1)
	c.downtime.Add(int64(downtime))
	c.logger.Info("telemetry feed restored", "downtime", downtime.String(), "reconnects", c.reconnects.Load())
}

// Stats returns a snapshot of the counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Received:       c.received.Load(),
		Stored:         c.stored.Load(),
		ParseErrors:    c.parseErrors.Load(),
		HistoryErrors:  c.historyErrors.Load(),
		MetricsDropped: c.metricsDropped.Load(),
		MetricsErrors:  c.metricsErrors.Load(),
		Disconnects:    c.disconnects.Load(),
		Reconnects:     c.reconnects.Load(),
		Downtime:       time.Duration(c.downtime.Load()),
		Pruned:         c.pruned.Load(),
	}
}
