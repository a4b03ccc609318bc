// Package hub implements the server variant: a registry of connected
// WebSocket clients keyed by a generated client id, plus the handlers that
// authenticate clients, answer sensor requests and rebroadcast store events.
//
// A new client always receives welcome first, then an initial_data snapshot
// when one is configured with SetSnapshot.
//
// Each client frame is posted to the shared router and dispatched on its
// processing goroutine with Source set to the client id.
package hub
