// Package codec implements the Message Codec.
//
// Every frame on the wire is a JSON object carrying a string "type"
// discriminator. Decoding happens in two stages:
//   - Decode validates the envelope and extracts the type (this package)
//   - the listener that owns the type decodes its payload (internal/model)
//
// A failure in either stage is reported as a *DecodeError and never affects
// other frames.
package codec
