package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// Decision samples are telemetry: a short outage loses points rather
	// than growing the retry buffer without bound.
	maxRetries       = 3
	maxRetryTimeMs   = 30_000
	retryBufferLimit = 10_000
)

// Client writes security decision samples to InfluxDB.
//
// Writes are non-blocking and batched. All methods are safe for concurrent
// use, safe on a nil *Client, and become no-ops once the client is closed.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected atomic.Bool
	failures  atomic.Int64
	closeOnce sync.Once

	mu      sync.Mutex
	onError func(err error)
}

// writeOptions maps the config onto client options. Points are stamped at
// millisecond precision; decision latencies are stored as a field.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- values are positive after defaulting
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000).
		SetPrecision(time.Millisecond).
		SetUseGZip(true).
		SetMaxRetries(maxRetries).
		SetMaxRetryTime(maxRetryTimeMs).
		SetRetryBufferLimit(retryBufferLimit)
}

// Connect pings the server and starts the async write pipeline. A disabled
// config returns ErrDisabled and a nil client, which callers may still use.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.connected.Store(true)
	go c.watchErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// watchErrors counts failed batch writes and forwards them to the callback.
func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failures.Add(1)

		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
}

// Close flushes pending writes and shuts the client down. Safe to call
// more than once.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.writeAPI.Flush()
		c.client.Close()
	})
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected.Load()
}

// WriteFailures returns the number of batches the server rejected or that
// could not be delivered.
func (c *Client) WriteFailures() int64 {
	if c == nil {
		return 0
	}
	return c.failures.Load()
}

// SetOnError registers a callback for async write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
