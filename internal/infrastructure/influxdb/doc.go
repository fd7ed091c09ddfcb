// Package influxdb writes collected sensor samples to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    log.Warn("influxdb write failed", "error", err)
//	})
//	client.WriteSample("sensors/temperature_humidity", sample, time.Now())
//
// Each sample becomes one point carrying temperature_c and humidity_pct
// fields. The measurement and the name of the topic tag come from
// influxdb.measurement and influxdb.topic_tag (sensor_telemetry and topic
// when unset). WriteSample returns false for a sample offered after Close.
//
// # Error Handling
//
// Writes are batched according to batch_size and flush_interval. Failures
// are delivered asynchronously to the SetOnError callback. Connection and
// health check errors are returned directly.
package influxdb
