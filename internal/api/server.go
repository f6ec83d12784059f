package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/dh2mqtt/internal/bridges/devicehub"
	"github.com/nerrad567/dh2mqtt/internal/connection"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/dh2mqtt/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionStatus is the part of the connection manager the API reports on.
// This interface is satisfied by *connection.Manager.
type ConnectionStatus interface {
	State() connection.State
	Stats() connection.Stats
}

// RelayStatus reports the relay's message counters.
// This interface is satisfied by *devicehub.Relay.
type RelayStatus interface {
	Stats() devicehub.Stats
}

// HealthChecker is an optional backing store that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Logger defines the logging interface for the API server.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     Logger
	Connection ConnectionStatus
	Relay      RelayStatus

	// Journal is optional; without it the events endpoint returns 404.
	Journal journal.Repository

	// Checks are optional named health checks (journal database, InfluxDB).
	Checks map[string]HealthChecker

	Version string
}

// Server is the read-only HTTP status API for the relay.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    Logger
	conn      ConnectionStatus
	relay     RelayStatus
	journal   journal.Repository
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, connection, relay)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Connection == nil {
		return nil, fmt.Errorf("connection status is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay status is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		conn:      deps.Connection,
		relay:     deps.Relay,
		journal:   deps.Journal,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves requests in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.Read,
		ReadHeaderTimeout: s.cfg.Timeouts.Read,
		WriteTimeout:      s.cfg.Timeouts.Write,
		IdleTimeout:       s.cfg.Timeouts.Idle,
	}

	srv := s.server
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", serveErr)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
