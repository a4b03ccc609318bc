// Package connection implements the Connection Session component.
//
// A Session owns one logical duplex WebSocket connection:
//   - Connect returns immediately; dialing happens in the background
//   - An auth envelope is queued ahead of any user frame when a token is set
//   - Send fails with ErrNotConnected unless the session is connected
//   - Close is idempotent; no callback starts after it returns
//   - Optional reconnection with exponential backoff
//
// Callbacks are marshaled through an Executor so consumers see them on a
// single processing context.
package connection
