package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
	defaultMeasurement   = "sensor_telemetry"
	defaultTopicTag      = "topic"
)

// Client is the collector's InfluxDB sink. Samples go through the library's
// non-blocking write API; a sample offered after Close is rejected so the
// caller can count it.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	measurement string
	topicTag    string

	// mu guards open. WriteSample holds the read lock while queueing so
	// Close cannot release the write API underneath it.
	mu   sync.RWMutex
	open bool

	errMu   sync.RWMutex
	onError func(err error)
}

// settings fills the zero values of cfg.
func settings(cfg config.InfluxDBConfig) (batch uint, flush time.Duration, measurement, topicTag string) {
	batch = defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush = defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	measurement = defaultMeasurement
	if cfg.Measurement != "" {
		measurement = cfg.Measurement
	}
	topicTag = defaultTopicTag
	if cfg.TopicTag != "" {
		topicTag = cfg.TopicTag
	}
	return batch, flush, measurement, topicTag
}

// Connect pings the server and opens a batching write API on cfg.Org and
// cfg.Bucket. It returns ErrDisabled when cfg.Enabled is false and
// ErrConnectionFailed when the ping does not succeed.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batch, flush, measurement, topicTag := settings(cfg)

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds())), //nolint:gosec // positive
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:      client,
		writeAPI:    client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: measurement,
		topicTag:    topicTag,
		open:        true,
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// forwardErrors drains the write API's error channel until the client
// closes it. Each error stands for one failed batch.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		callback := c.onError
		c.errMu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers the callback for failed batch writes. It is called
// from a background goroutine.
func (c *Client) SetOnError(callback func(err error)) {
	c.errMu.Lock()
	c.onError = callback
	c.errMu.Unlock()
}

// IsConnected reports whether Connect succeeded and Close has not run.
// HealthCheck performs an actual round trip.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush hands buffered points to the writer. It is a no-op on a closed or
// zero Client.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes what is buffered and releases the client. Later samples are
// rejected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
