// Package logging provides structured logging for the sensor node and the
// collector.
//
// This package wraps Go's standard log/slog package so both binaries emit
// the same structured records.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for bench work (human-readable)
//   - Rotating log files via lumberjack
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/sensornode.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "sensornode", version)
//	defer logger.Close()
//	logger.Info("telemetry published", "topic", topic)
//
// Never log broker passwords or the InfluxDB token.
package logging
