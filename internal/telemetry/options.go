package telemetry

import (
	"log/slog"
	"time"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/thingsmqtt/internal/rpc"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives every telemetry envelope and every batch of changed
// attributes as Send builds them, whether or not they can be sent right
// away. influxdb.Client implements it.
type Recorder interface {
	RecordTelemetry(ts time.Time, values map[string]any)
	RecordAttributes(ts time.Time, values map[string]any)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithQoS sets the QoS used for publishes and the RPC subscription.
func WithQoS(q mqtt.QoS) Option {
	return func(c *Controller) {
		if q.Valid() {
			c.qos = q
		}
	}
}

// WithMaxPending bounds the pending telemetry queue. When full, the oldest
// payload is dropped. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxPending = n
		}
	}
}

// WithRecorder mirrors every telemetry envelope and attribute change to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithObserver forwards every connection event to h after the controller
// has handled it.
func WithObserver(h mqtt.Handler) Option {
	return func(c *Controller) {
		if h != nil {
			c.observer = h
		}
	}
}

// WithRPC enables RPC dispatch on the given topics. Empty prefixes use the
// device API defaults.
func WithRPC(topics rpc.Topics) Option {
	return func(c *Controller) {
		if topics.RequestPrefix == "" {
			topics.RequestPrefix = mqtt.TopicPrefixRPCRequest
		}
		if topics.ResponsePrefix == "" {
			topics.ResponsePrefix = mqtt.TopicPrefixRPCResponse
		}
		c.rpcEnabled = true
		c.rpcTopics = topics
	}
}

func discardLogger() Logger {
	return slog.New(slog.DiscardHandler)
}
