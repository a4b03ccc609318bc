package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// QueueLimit caps rows waiting to be batched. 0 means no limit.
	QueueLimit int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		QueueLimit:    100000,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// sensorRow represents a row for the sensor_readings table.
type sensorRow struct {
	SensorID   string
	Kind       string
	Value      float64
	Unit       *string // NULL when absent
	Status     *string // NULL when absent
	Location   string
	ObservedAt time.Time
	ReceivedAt time.Time
}

// SensorReadingsSchema creates the sensor_readings table.
const SensorReadingsSchema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	sensor_id   TEXT             NOT NULL,
	kind        TEXT             NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT,
	status      TEXT,
	location    TEXT             NOT NULL,
	observed_at TIMESTAMPTZ      NOT NULL,
	received_at TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (sensor_id, observed_at)
)`
