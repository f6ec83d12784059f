package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/dh2mqtt/internal/infrastructure/config"
)

const (
	// pingTimeout bounds the startup ping and every HealthCheck.
	pingTimeout = 5 * time.Second

	// Batch defaults used when the configuration leaves them unset.
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes relay telemetry to InfluxDB v2.
//
// Points are queued on the library's non-blocking write API and sent in
// batches, so a slow or unreachable server never delays relaying.
type Client struct {
	influx   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	closed  bool
	onError func(err error)
}

// Connect pings the server and prepares the batching write API for
// cfg.Org/cfg.Bucket. It returns ErrDisabled when telemetry is turned off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(pingCtx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx:   influx,
		writeAPI: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// clientOptions maps the batch settings onto library options.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(uint(flush.Milliseconds())) //nolint:gosec // positive by construction
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// forwardErrors relays batch write failures to the SetOnError callback.
// It exits when the write API is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()

		if cb != nil {
			cb(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// IsConnected reports whether the client is still open. It does not ping;
// use HealthCheck for that.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.influx != nil && !c.closed
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(pingCtx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until queued points are sent. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes queued points and releases the client. Safe to call more
// than once, and on a zero Client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.influx == nil || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.influx.Close()
	return nil
}
