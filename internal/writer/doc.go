// Package writer implements the batched sensor reading writer.
//
// The writer subscribes to sensor_update on a router, queues one row per
// reading and inserts rows into the sensor_readings table with pgx batches,
// flushing when the batch is full or the flush interval elapses.
//
// Writes are append-only; a reading already stored for the same sensor and
// observation time is skipped and counted as a conflict.
package writer
