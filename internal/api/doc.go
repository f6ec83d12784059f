// Package api serves a small read-only HTTP status API for the relay.
//
// Endpoints, all under /api/v1:
//   - GET /health: 200 while the broker session is connected and every
//     configured backing store answers, 503 otherwise
//   - GET /metrics: runtime, connection and relay counters
//   - GET /connection/events?limit=N: recent connection journal entries,
//     newest first (404 when the journal is disabled)
//
// The API never publishes or alters relay state. It is disabled unless
// api.enabled is set.
//
//	server, err := api.New(deps)
//	if err := server.Start(); err != nil { ... }
//	defer server.Close()
package api
