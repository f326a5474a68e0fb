package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/config"
)

const (
	defaultPingTimeout = 10 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 1 * time.Second

	// deviceTag names the tag carrying the device name on every point.
	deviceTag = "device"
)

// Client is the local historian. It implements telemetry.Recorder: every
// telemetry envelope and attribute update the controller produces becomes
// one point, written through the library's batching WriteAPI.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	closed  bool
	onError func(err error)
}

// Connect pings the server and opens a batching writer for cfg.Bucket.
//
// Parameters:
//   - cfg: InfluxDB settings; zero batch settings use the defaults
//   - device: Value of the device tag on every point; empty omits the tag
//
// Returns:
//   - *Client: Ready to pass to telemetry.WithRecorder
//   - error: ErrDisabled when switched off, ErrConnectionFailed when the ping fails
func Connect(cfg config.InfluxDBConfig, device string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, device))

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions maps the mirror settings onto client options. Unset batch
// settings fall back to 100 points and a one second flush.
func writeOptions(cfg config.InfluxDBConfig, device string) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = cfg.GetFlushInterval()
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
	if device != "" {
		opts.AddDefaultTag(deviceTag, device)
	}
	return opts
}

// forwardErrors hands async write failures to the SetOnError callback until
// the WriteAPI closes its error channel.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close writes whatever is still buffered and shuts the client down.
// Later calls, and calls on a zero Client, do nothing.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.client == nil || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// IsConnected reports whether the client accepts points.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && !c.closed
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
