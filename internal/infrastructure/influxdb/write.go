package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Field names for device samples.
const (
	fieldTemperature = "temperature_c"
	fieldHumidity    = "humidity_pct"
)

// WriteSample queues one sample as a point in the configured measurement,
// tagged with the topic it arrived on. It reports false when the client is
// closed and the sample was dropped. Batch failures surface later through
// SetOnError.
//
// Example:
//
//	if !client.WriteSample("sensors/temperature_humidity", sample, receivedAt) {
//	    dropped++
//	}
func (c *Client) WriteSample(topic string, s telemetry.Sample, at time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return false
	}

	c.writeAPI.WritePoint(write.NewPoint(
		c.measurement,
		map[string]string{c.topicTag: topic},
		map[string]any{
			fieldTemperature: s.Temperature,
			fieldHumidity:    s.Humidity,
		},
		at,
	))
	return true
}
