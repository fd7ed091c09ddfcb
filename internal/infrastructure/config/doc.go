// Package config handles loading and validating sensor node and collector
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of every field a binary depends on
//   - Default value handling
//
// Both binaries share one file layout. The sensor node reads the device,
// mqtt, telemetry and logging sections; the collector reads mqtt.broker,
// mqtt.auth, collector, influxdb and logging.
//
// Security Considerations:
//   - Broker passwords and the InfluxDB token should be set via environment
//     variables (GRAYLOGIC_MQTT_PASSWORD, GRAYLOGIC_INFLUXDB_TOKEN)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/sensornode.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.BrokerAddress())
package config
