package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dh2mqtt/internal/connection"
)

// healthCheckTimeout bounds each backing-store check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.withAccessLog, s.withRecovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/connection/events", s.handleConnectionEvents)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	State      string            `json:"state"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok" only while the broker session is connected and
// every configured backing store answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.conn.State()
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		State:   state.String(),
	}
	if state != connection.StateConnected {
		resp.Status = "degraded"
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Metrics is the body of GET /api/v1/metrics.
type Metrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Connection    ConnectionMetrics `json:"connection"`
	Relay         RelayMetrics      `json:"relay"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ConnectionMetrics mirrors connection.Stats.
type ConnectionMetrics struct {
	State            string `json:"state"`
	Connects         uint64 `json:"connects"`
	ConnectionLosses uint64 `json:"connection_losses"`
	WatchdogTrips    uint64 `json:"watchdog_trips"`
	FailedAttempts   uint64 `json:"failed_attempts"`
	Discarded        uint64 `json:"discarded"`
	IdleTicks        int64  `json:"idle_ticks"`
}

// RelayMetrics mirrors devicehub.Stats.
type RelayMetrics struct {
	Received   uint64 `json:"received"`
	Relayed    uint64 `json:"relayed"`
	Ignored    uint64 `json:"ignored"`
	Incomplete uint64 `json:"incomplete"`
	Dropped    uint64 `json:"dropped"`
}

// handleMetrics returns runtime, connection and relay counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cs := s.conn.Stats()
	rs := s.relay.Stats()

	writeJSON(w, http.StatusOK, Metrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Connection: ConnectionMetrics{
			State:            cs.State.String(),
			Connects:         cs.Connects,
			ConnectionLosses: cs.ConnectionLosses,
			WatchdogTrips:    cs.WatchdogTrips,
			FailedAttempts:   cs.FailedAttempts,
			Discarded:        cs.Discarded,
			IdleTicks:        cs.IdleTicks,
		},
		Relay: RelayMetrics{
			Received:   rs.Received,
			Relayed:    rs.Relayed,
			Ignored:    rs.Ignored,
			Incomplete: rs.Incomplete,
			Dropped:    rs.Dropped,
		},
	})
}

// ConnectionEvent is one journal entry in the events response.
type ConnectionEvent struct {
	ID         int64  `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// handleConnectionEvents lists the most recent journal entries, newest first.
// Query parameter limit is optional.
func (s *Server) handleConnectionEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, r, http.StatusNotFound, "connection journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read connection journal", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to read connection journal")
		return
	}

	out := make([]ConnectionEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ConnectionEvent{
			ID:         ev.ID,
			From:       ev.From,
			To:         ev.To,
			Reason:     ev.Reason,
			OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}
