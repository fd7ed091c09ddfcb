package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

const (
	defaultSampleLimit = 50
	maxSampleLimit     = 1000

	// receivedAtLayout is fixed width so received_at sorts lexically.
	receivedAtLayout = "2006-01-02T15:04:05.000000000Z"
)

// SampleRecord is one stored telemetry sample.
type SampleRecord struct {
	ID          int64
	Topic       string
	Temperature float64
	Humidity    float64
	ReceivedAt  time.Time
}

// SampleStore persists telemetry samples in the telemetry_samples table
// created by the embedded migrations.
type SampleStore struct {
	db *DB
}

// NewSampleStore returns a store over an open, migrated database.
func NewSampleStore(db *DB) *SampleStore {
	return &SampleStore{db: db}
}

// Record inserts a sample received on topic at the given time.
func (s *SampleStore) Record(ctx context.Context, topic string, sample telemetry.Sample, at time.Time) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO telemetry_samples (topic, temperature, humidity, received_at) VALUES (?, ?, ?, ?)",
		topic,
		sample.Temperature,
		sample.Humidity,
		at.UTC().Format(receivedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry sample: %w", err)
	}
	return nil
}

// Recent returns the newest samples for topic, newest first. An empty topic
// matches every topic. limit defaults to 50 and is capped at 1000.
func (s *SampleStore) Recent(ctx context.Context, topic string, limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = defaultSampleLimit
	}
	if limit > maxSampleLimit {
		limit = maxSampleLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, temperature, humidity, received_at
		 FROM telemetry_samples
		 WHERE ? = '' OR topic = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		topic, topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry samples: %w", err)
	}
	defer rows.Close()

	records := make([]SampleRecord, 0, limit)
	for rows.Next() {
		var r SampleRecord
		var receivedAt string
		if err := rows.Scan(&r.ID, &r.Topic, &r.Temperature, &r.Humidity, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning telemetry sample: %w", err)
		}
		r.ReceivedAt, err = time.Parse(receivedAtLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry samples: %w", err)
	}
	return records, nil
}

// Count returns the number of stored samples.
func (s *SampleStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM telemetry_samples").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting telemetry samples: %w", err)
	}
	return n, nil
}

// Prune deletes samples received before now minus olderThan.
func (s *SampleStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(receivedAtLayout)
	result, err := s.db.ExecContext(ctx, "DELETE FROM telemetry_samples WHERE received_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting telemetry samples: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
