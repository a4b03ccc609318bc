package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/model"
	"github.com/rickgao/storetwin/internal/router"
)

// SensorWriter consumes sensor readings from a router and writes them to the
// sensor_readings table.
type SensorWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the router listener
	input *router.Queue[sensorRow]
	sub   router.Subscription
	rtr   *router.Router

	// Database
	db DB

	// Batching
	batch   []sensorRow
	batchMu sync.Mutex

	// Lifecycle
	ctx      context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewSensorWriter creates a new SensorWriter.
func NewSensorWriter(cfg WriterConfig, db DB, logger *slog.Logger) *SensorWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return &SensorWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  router.NewQueue[sensorRow](cfg.BatchSize, cfg.QueueLimit),
		batch:  make([]sensorRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the sensor_readings table if it does not exist.
func (w *SensorWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, SensorReadingsSchema); err != nil {
		return fmt.Errorf("create sensor_readings: %w", err)
	}
	return nil
}

// Attach subscribes the writer to sensor_update on r. The listener only
// queues; inserts happen on the writer's own goroutines.
func (w *SensorWriter) Attach(r *router.Router) {
	w.rtr = r
	w.sub = router.On(r, model.TypeSensorUpdate, model.DecodeSensorUpdate,
		func(_ context.Context, env codec.Envelope, reading model.SensorReading) error {
			w.Enqueue(reading, env.ReceivedAt)
			return nil
		})
}

// Enqueue queues one reading for insertion.
func (w *SensorWriter) Enqueue(reading model.SensorReading, receivedAt time.Time) bool {
	if w.input.Push(w.transform(reading, receivedAt)) {
		return true
	}
	w.batchMu.Lock()
	w.metrics.Dropped++
	w.batchMu.Unlock()
	w.logger.Warn("sensor writer queue full, dropping reading", "sensor", reading.SensorID)
	return false
}

// Start begins consuming readings and writing to the database. ctx bounds
// every insert, so it should outlive Stop.
func (w *SensorWriter) Start(ctx context.Context) error {
	w.ctx = ctx
	w.stop = make(chan struct{})

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("sensor writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, drains the queue and flushes what is left.
func (w *SensorWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping sensor writer")

	if w.rtr != nil {
		w.rtr.Unsubscribe(w.sub)
	}
	w.input.Close()
	if w.stop != nil {
		w.stopOnce.Do(func() { close(w.stop) })
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("sensor writer stopped")
	case <-ctx.Done():
		w.logger.Warn("sensor writer stop timed out")
	}

	// Rows still queued if the consumer never ran.
	for {
		row, ok := w.input.TryPop()
		if !ok {
			break
		}
		w.batchMu.Lock()
		w.batch = append(w.batch, row)
		w.batchMu.Unlock()
	}

	// Final flush
	w.flush(ctx)
	return nil
}

// Stats returns current metrics.
func (w *SensorWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves queued rows into the batch until the queue is closed.
func (w *SensorWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		row, ok := w.input.Pop()
		if !ok {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, row)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *SensorWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// transform converts a reading to a sensorRow.
func (w *SensorWriter) transform(r model.SensorReading, receivedAt time.Time) sensorRow {
	row := sensorRow{
		SensorID:   r.SensorID,
		Kind:       r.Kind,
		Value:      r.Value,
		Location:   r.Location,
		ObservedAt: r.Timestamp.UTC(),
		ReceivedAt: receivedAt.UTC(),
	}
	if r.Unit != "" {
		unit := r.Unit
		row.Unit = &unit
	}
	if r.Status != "" {
		status := r.Status
		row.Status = &status
	}
	return row
}

// flush writes the current batch to the database.
func (w *SensorWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]sensorRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed sensor readings",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *SensorWriter) batchInsert(ctx context.Context, rows []sensorRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO sensor_readings (sensor_id, kind, value, unit, status, location, observed_at, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (sensor_id, observed_at) DO NOTHING
		`, r.SensorID, r.Kind, r.Value, r.Unit, r.Status, r.Location, r.ObservedAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
