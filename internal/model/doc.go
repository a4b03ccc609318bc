// Package model defines the typed payloads carried inside envelopes.
//
// Each message type has a wire struct mirroring the JSON sent by the store
// simulators and the server, and a decoder that turns an envelope into the
// in-process shape. Decoders are the second stage of decoding: they fail
// only for the one message they are given.
//
// Conventions:
//   - Sensor wire fields keep their original names (sensor, tipo, valor, ubicacion)
//   - Timestamps: time.Time in process, ISO-8601 strings on the wire
//   - status_update timestamps are int64 milliseconds since Unix epoch
package model
