package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dh2mqtt/internal/bridges/devicehub"
	"github.com/nerrad567/dh2mqtt/internal/connection"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/dh2mqtt/internal/journal"
)

type fakeConn struct {
	state connection.State
	stats connection.Stats
}

func (f *fakeConn) State() connection.State { return f.state }
func (f *fakeConn) Stats() connection.Stats { return f.stats }

type fakeRelay struct {
	stats devicehub.Stats
}

func (f *fakeRelay) Stats() devicehub.Stats { return f.stats }

type fakeJournal struct {
	events    []journal.Event
	err       error
	lastLimit int
}

func (f *fakeJournal) Record(context.Context, connection.Transition) error { return nil }

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]journal.Event, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// testServer creates a Server over fakes. The connection starts connected.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeConn) {
	t.Helper()

	conn := &fakeConn{state: connection.StateConnected}
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5 * time.Second,
				Write: 5 * time.Second,
				Idle:  5 * time.Second,
			},
		},
		Logger:     logging.Nop(),
		Connection: conn,
		Relay:      &fakeRelay{},
		Version:    "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	return srv, conn
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	return serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestNew_RequiredDeps(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"missing logger", func(d *Deps) { d.Logger = nil }},
		{"missing connection", func(d *Deps) { d.Connection = nil }},
		{"missing relay", func(d *Deps) { d.Relay = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Logger:     logging.Nop(),
				Connection: &fakeConn{},
				Relay:      &fakeRelay{},
			}
			tt.mutate(&deps)
			_, err := New(deps)
			assert.Error(t, err)
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := get(srv, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, HealthResponse{Status: "ok", Version: "test", State: "connected"}, resp)
}

func TestHealth_Disconnected(t *testing.T) {
	srv, conn := testServer(t, nil)
	conn.state = connection.StateConnecting

	w := get(srv, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connecting", resp.State)
}

func TestHealth_Components(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"journal":  checkFunc(func(context.Context) error { return nil }),
			"influxdb": checkFunc(func(context.Context) error { return errors.New("unreachable") }),
		}
	})

	w := get(srv, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, map[string]string{"journal": "ok", "influxdb": "unreachable"}, resp.Components)
}

// ─── Metrics Endpoint Tests ────────────────────────────────────────

func TestMetrics(t *testing.T) {
	srv, conn := testServer(t, func(d *Deps) {
		d.Relay = &fakeRelay{stats: devicehub.Stats{Received: 10, Relayed: 7, Ignored: 1, Incomplete: 1, Dropped: 1}}
	})
	conn.stats = connection.Stats{
		State:            connection.StateConnected,
		Connects:         3,
		ConnectionLosses: 2,
		WatchdogTrips:    1,
		Discarded:        5,
		IdleTicks:        4,
	}

	w := get(srv, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var m Metrics
	decode(t, w, &m)
	assert.Equal(t, ConnectionMetrics{
		State:            "connected",
		Connects:         3,
		ConnectionLosses: 2,
		WatchdogTrips:    1,
		Discarded:        5,
		IdleTicks:        4,
	}, m.Connection)
	assert.Equal(t, RelayMetrics{Received: 10, Relayed: 7, Ignored: 1, Incomplete: 1, Dropped: 1}, m.Relay)
	assert.Positive(t, m.Runtime.Goroutines)
	assert.Equal(t, "test", m.Version)
}

// ─── Connection Events Tests ───────────────────────────────────────

func TestConnectionEvents(t *testing.T) {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	j := &fakeJournal{events: []journal.Event{
		{ID: 2, From: "connected", To: "disconnected", Reason: "connection: watchdog timeout", OccurredAt: at.Add(time.Minute)},
		{ID: 1, From: "connecting", To: "connected", OccurredAt: at},
	}}
	srv, _ := testServer(t, func(d *Deps) { d.Journal = j })

	w := get(srv, "/api/v1/connection/events?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, j.lastLimit)

	var resp struct {
		Events []ConnectionEvent `json:"events"`
		Count  int               `json:"count"`
	}
	decode(t, w, &resp)
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, int64(2), resp.Events[0].ID)
	assert.Equal(t, "disconnected", resp.Events[0].To)
	assert.Equal(t, "2026-06-01T09:00:00Z", resp.Events[1].OccurredAt)
}

func TestConnectionEvents_DefaultLimit(t *testing.T) {
	j := &fakeJournal{}
	srv, _ := testServer(t, func(d *Deps) { d.Journal = j })

	w := get(srv, "/api/v1/connection/events")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, j.lastLimit, "repository applies its own default")

	var resp map[string]any
	decode(t, w, &resp)
	assert.Equal(t, []any{}, resp["events"])
}

func TestConnectionEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		journal journal.Repository
		path    string
		want    int
	}{
		{"journal disabled", nil, "/api/v1/connection/events", http.StatusNotFound},
		{"bad limit", &fakeJournal{}, "/api/v1/connection/events?limit=abc", http.StatusBadRequest},
		{"zero limit", &fakeJournal{}, "/api/v1/connection/events?limit=0", http.StatusBadRequest},
		{"read failure", &fakeJournal{err: errors.New("disk I/O error")}, "/api/v1/connection/events", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(d *Deps) { d.Journal = tt.journal })
			assert.Equal(t, tt.want, get(srv, tt.path).Code)
		})
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := get(srv, "/api/v1/health")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")

	assert.Equal(t, "client-123", serve(srv, req).Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"broken": checkFunc(func(context.Context) error { panic("boom") }),
		}
	})

	w := get(srv, "/api/v1/health")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorBody(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Journal = &fakeJournal{} })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connection/events?limit=-1", nil)
	req.Header.Set("X-Request-ID", "req-7")
	w := serve(srv, req)

	var body ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "bad_request", body.Code)
	assert.Equal(t, "req-7", body.RequestID)
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, nil)

	assert.Equal(t, http.StatusNotFound, get(srv, "/api/v1/nonexistent").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, nil)

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestStartAndClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	assert.Empty(t, srv.Addr(), "Addr before Start")
	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start(), "second Start")

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, srv.Close())
}

func TestClose_NotStarted(t *testing.T) {
	srv, _ := testServer(t, nil)
	assert.NoError(t, srv.Close())
}
