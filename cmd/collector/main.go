// Collector: subscribes to sensor telemetry on the broker and stores every
// sample in a local SQLite history and, when enabled, InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/collector"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "collector"
	defaultConfigPath = "configs/sensornode.yaml"

	healthCheckTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run connects the sinks and the MQTT client, then blocks until ctx is
// cancelled. Deferred closes run in reverse order: MQTT, InfluxDB, database.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting collector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, path, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, serviceName, version)
	defer log.Close() //nolint:errcheck // nothing to do on shutdown

	var (
		history *database.SampleStore
		db      *database.DB
	)
	if cfg.Collector.History.Enabled {
		db, err = database.Open(cfg.Collector.History)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		history = database.NewSampleStore(db)
		logHistory(ctx, log, db.Path(), history)
	} else {
		log.Info("history disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	c := newCollector(history, influxClient)
	c.SetLogger(log.With("component", "collector"))
	if influxClient != nil {
		influxClient.SetOnError(c.HandleMetricsError)
	}

	mqttClient, err := mqtt.Connect(mqtt.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetObserver(c)
	log.Info("MQTT connected",
		"broker", cfg.BrokerAddress(),
		"client_id", mqttClient.ClientID(),
	)

	if err := c.Start(mqttClient, cfg.Collector.Topic, byte(cfg.Collector.QoS)); err != nil { //nolint:gosec // validated 0-2 by config
		return err
	}
	log.Info("collecting telemetry",
		"topic", cfg.Collector.Topic,
		"subscriptions", mqttClient.SubscriptionCount(),
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient, cfg.Collector.Topic); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	retentionDone := make(chan struct{})
	if history != nil && cfg.Collector.History.Retention > 0 {
		go func() {
			defer close(retentionDone)
			c.RunRetention(ctx, history, cfg.Collector.History.Retention, cfg.Collector.History.PruneInterval)
		}()
	} else {
		close(retentionDone)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	<-retentionDone

	stats := c.Stats()
	log.Info("collector stopped",
		"received", stats.Received,
		"stored", stats.Stored,
		"parse_errors", stats.ParseErrors,
		"history_errors", stats.HistoryErrors,
		"metrics_dropped", stats.MetricsDropped,
		"metrics_errors", stats.MetricsErrors,
		"disconnects", stats.Disconnects,
		"reconnects", stats.Reconnects,
		"downtime", stats.Downtime.String(),
		"pruned", stats.Pruned,
	)
	return nil
}

// logHistory reports what the history already holds, so a restart shows
// where collection resumes.
func logHistory(ctx context.Context, log *logging.Logger, path string, store *database.SampleStore) {
	rows, err := store.Count(ctx)
	if err != nil {
		log.Warn("counting history", "error", err)
		return
	}
	attrs := []any{"path", path, "rows", rows}
	if latest, err := store.Recent(ctx, "", 1); err == nil && len(latest) == 1 {
		attrs = append(attrs,
			"last_topic", latest[0].Topic,
			"last_received_at", latest[0].ReceivedAt.Format(time.RFC3339),
		)
	}
	log.Info("history database ready", attrs...)
}

// newCollector avoids handing the collector a typed nil interface when a
// sink is disabled.
func newCollector(history *database.SampleStore, influxClient *influxdb.Client) *collector.Collector {
	var (
		h collector.HistoryStore
		m collector.MetricsWriter
	)
	if history != nil {
		h = history
	}
	if influxClient != nil {
		m = influxClient
	}
	return collector.New(h, m)
}

// healthCheck verifies every enabled connection and the telemetry
// subscription. db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, filter string) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if !mqttClient.HasSubscription(filter) {
		return fmt.Errorf("mqtt: not subscribed to %q", filter)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// loadConfig reads GRAYLOGIC_CONFIG if set, else the default path when it
// exists, else the built-in defaults.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.Load(defaultConfigPath)
		return cfg, defaultConfigPath, err
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, defaultConfigPath, err
	}

	cfg, err := config.Default()
	return cfg, "(built-in defaults)", err
}
