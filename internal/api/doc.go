// Package api is the HTTP surface of the storetwin server and a client for
// it.
//
// Server endpoints (gin):
//   - GET /ws: WebSocket upgrade into the hub
//   - GET /health: hub, router and database status
//   - GET /clients: connected client ids
//   - GET /sensors, GET /sensors/:id: latest sensor readings
//
// /clients and /sensors require a bearer token when a verifier is set.
package api
