// Package status implements the periodic status broadcaster.
//
// The broadcaster:
//   - Builds a status_update envelope every interval (default: 5s)
//   - Reports connected clients, latest sensor readings and router counters
//   - Broadcasts it to every connected client
package status
