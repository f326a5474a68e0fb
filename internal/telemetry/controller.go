package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/thingsmqtt/internal/rpc"
	"github.com/nerrad567/thingsmqtt/internal/state"
	"github.com/nerrad567/thingsmqtt/internal/value"
)

// envelope is the telemetry wire shape: {"ts": <ms>, "values": {...}}.
type envelope struct {
	TS     int64          `json:"ts"`
	Values map[string]any `json:"values"`
}

// Controller keeps the device's telemetry and attribute state and pushes
// changes to the broker over a Connection.
//
// All methods, including the event callbacks, must be called from the
// goroutine that drives Loop. The controller registers itself as the
// connection's event handler.
type Controller struct {
	conn   mqtt.Connection
	logger Logger
	now    func() time.Time
	qos    mqtt.QoS

	telemetry  *state.Model
	attributes *state.Model

	// pending holds encoded telemetry envelopes that could not be sent,
	// oldest first.
	pending    [][]byte
	maxPending int

	rpcEnabled bool
	rpcTopics  rpc.Topics
	handlers   *rpc.Table

	observer mqtt.Handler
	recorder Recorder
}

// New creates a controller on conn and installs it as conn's handler.
//
// Parameters:
//   - conn: Either connection strategy; the controller owns its handler slot
//   - opts: Logger, clock, QoS (default at-least-once), pending bound, RPC,
//     recorder and observer
//
// Returns:
//   - *Controller: Disconnected until Connect and Loop deliver a CONNACK
func New(conn mqtt.Connection, opts ...Option) *Controller {
	c := &Controller{
		conn:       conn,
		logger:     discardLogger(),
		now:        time.Now,
		qos:        mqtt.AtLeastOnce,
		telemetry:  state.NewModel(),
		attributes: state.NewModel(),
		handlers:   rpc.NewTable(),
		observer:   mqtt.NopHandler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	conn.SetHandler(c)
	return c
}

// Connect validates cfg, configures the connection and starts connecting.
// Completion is reported through the connect event delivered by Loop.
func (c *Controller) Connect(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.normalised()

	if err := c.conn.Configure(cfg.clientOptions()); err != nil {
		return err
	}

	if c.rpcEnabled {
		if err := c.conn.Subscribe(c.rpcTopics.RequestFilter(), c.qos); err != nil {
			return fmt.Errorf("subscribing to rpc requests: %w", err)
		}
	}

	c.logger.Info("connecting to broker", "host", cfg.Host, "port", cfg.Port, "keepalive", cfg.KeepAlive)
	if cfg.BindAddress != "" {
		return c.conn.ConnectBind(cfg.Host, cfg.BindAddress, cfg.Port, cfg.KeepAlive)
	}
	return c.conn.Connect(cfg.Host, cfg.Port, cfg.KeepAlive)
}

// Disconnect requests an orderly disconnect from the broker.
func (c *Controller) Disconnect() {
	c.conn.Disconnect()
}

// Close tears down the connection. Events still queued are delivered first.
func (c *Controller) Close() error {
	return c.conn.Close()
}

// Loop processes pending connection events and returns.
func (c *Controller) Loop() error {
	return c.conn.Loop()
}

// IsConnected reports the connection's current state.
func (c *Controller) IsConnected() bool {
	return c.conn.IsConnected()
}

// PublishTelemetry records a telemetry value. The key is marked dirty only
// when the value differs from the stored one. Nothing is sent until Send.
func (c *Controller) PublishTelemetry(key string, v any) error {
	return setValue(c.telemetry, key, v)
}

// SetAttribute records an attribute value. The key is marked dirty only
// when the value differs from the stored one. Nothing is sent until Send.
func (c *Controller) SetAttribute(key string, v any) error {
	return setValue(c.attributes, key, v)
}

func setValue(m *state.Model, key string, v any) error {
	if key == "" {
		return ErrEmptyKey
	}
	canonical, err := value.FromNative(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	m.Set(key, canonical)
	return nil
}

// PublishTelemetryDocument compares a complete telemetry document with the
// stored state and sends the keys whose values changed as one envelope.
// It reports whether anything was handed to the transport.
func (c *Controller) PublishTelemetryDocument(doc map[string]any) (bool, error) {
	canonical := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "" {
			return false, ErrEmptyKey
		}
		cv, err := value.FromNative(v)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrInvalidValue, k, err)
		}
		canonical[k] = cv
	}

	changed := c.telemetry.Diff(canonical)
	if changed == nil {
		return false, nil
	}
	return true, c.sendTelemetry(changed)
}

// Telemetry returns the stored telemetry value for key.
func (c *Controller) Telemetry(key string) (any, bool) {
	v, ok := c.telemetry.Get(key)
	if !ok {
		return nil, false
	}
	return value.ToNative(v), true
}

// Attribute returns the stored attribute value for key.
func (c *Controller) Attribute(key string) (any, bool) {
	v, ok := c.attributes.Get(key)
	if !ok {
		return nil, false
	}
	return value.ToNative(v), true
}

// PendingCount returns the number of telemetry envelopes awaiting replay.
func (c *Controller) PendingCount() int {
	return len(c.pending)
}

// Send emits dirty telemetry and dirty attributes and clears their dirty
// flags. Telemetry that cannot be delivered is queued for replay;
// attributes are resent as a full snapshot on the next connection.
//
// Returns:
//   - bool: Whether either model had dirty keys to send
//   - error: ErrSendFailed joined per model when the transport rejected a payload
func (c *Controller) Send() (bool, error) {
	sent := false
	var errs []error

	if values := c.telemetry.TakeDirty(); values != nil {
		sent = true
		if err := c.sendTelemetry(values); err != nil {
			errs = append(errs, err)
		}
	}

	if values := c.attributes.TakeDirty(); values != nil {
		sent = true
		if c.recorder != nil {
			c.recorder.RecordAttributes(c.now(), values)
		}
		if err := c.sendAttributes(values); err != nil {
			errs = append(errs, err)
		}
	}

	return sent, errors.Join(errs...)
}

func (c *Controller) sendTelemetry(values map[string]any) error {
	ts := c.now()
	payload, err := json.Marshal(envelope{TS: ts.UnixMilli(), Values: values})
	if err != nil {
		return fmt.Errorf("%w: encoding telemetry: %w", ErrSendFailed, err)
	}

	if c.recorder != nil {
		c.recorder.RecordTelemetry(ts, values)
	}

	// Queued envelopes go out first.
	if len(c.pending) == 0 && c.conn.IsConnected() {
		ok, err := c.conn.Publish(mqtt.TopicTelemetry, payload, c.qos, false)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if ok {
			return nil
		}
	}

	c.enqueue(payload)
	return nil
}

func (c *Controller) enqueue(payload []byte) {
	c.pending = append(c.pending, payload)
	if c.maxPending > 0 && len(c.pending) > c.maxPending {
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.logger.Warn("pending telemetry queue full, dropped oldest", "max", c.maxPending)
	}
	c.logger.Debug("telemetry queued while disconnected", "pending", len(c.pending))
}

func (c *Controller) sendAttributes(values map[string]any) error {
	if !c.conn.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("%w: encoding attributes: %w", ErrSendFailed, err)
	}
	if _, err := c.conn.Publish(mqtt.TopicAttributes, payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// resync runs after every accepted connection: the full attribute snapshot
// goes first, then queued telemetry in order.
func (c *Controller) resync() {
	if c.attributes.Len() > 0 {
		snapshot := c.attributes.Snapshot()
		c.attributes.ClearDirty()
		if err := c.publishSnapshot(snapshot); err != nil {
			c.logger.Error("attribute snapshot failed", "error", err)
		}
	}
	c.replayPending()
}

func (c *Controller) publishSnapshot(snapshot map[string]any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	ok, err := c.conn.Publish(mqtt.TopicAttributes, payload, c.qos, false)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Warn("attribute snapshot not sent, connection dropped")
	}
	return nil
}

func (c *Controller) replayPending() {
	if len(c.pending) == 0 {
		return
	}

	sent, dropped := 0, 0
	for len(c.pending) > 0 {
		ok, err := c.conn.Publish(mqtt.TopicTelemetry, c.pending[0], c.qos, false)
		if err == nil && !ok {
			break
		}
		if err != nil {
			c.logger.Error("dropping queued telemetry", "error", err)
			dropped++
		} else {
			sent++
		}
		c.pending[0] = nil
		c.pending = c.pending[1:]
	}
	if len(c.pending) == 0 {
		c.pending = nil
	}

	c.logger.Info("replayed queued telemetry", "sent", sent, "dropped", dropped, "remaining", len(c.pending))
}

// AddRPCHandler registers a handler for broker-initiated calls and returns
// its identifier. Handlers only run when RPC was enabled with WithRPC.
func (c *Controller) AddRPCHandler(h rpc.Handler) rpc.HandlerID {
	return c.handlers.Add(h)
}

// RemoveRPCHandler unregisters a handler. It reports whether id was
// registered.
func (c *Controller) RemoveRPCHandler(id rpc.HandlerID) bool {
	return c.handlers.Remove(id)
}

func (c *Controller) handleRPC(id string, payload []byte) {
	req, err := rpc.ParseRequest(id, payload)
	if err != nil {
		c.logger.Warn("malformed rpc request", "id", id, "error", err)
		c.respond(id, rpc.EncodeError(err))
		return
	}

	result, handled, err := c.handlers.Dispatch(req.Method, req.Params)
	if !handled {
		c.logger.Debug("no rpc handler", "id", id, "method", req.Method)
		return
	}
	if err != nil {
		c.logger.Error("rpc handler failed", "id", id, "method", req.Method, "error", err)
		c.respond(id, rpc.EncodeError(err))
		return
	}

	resp, err := rpc.EncodeResult(result)
	if err != nil {
		c.logger.Error("rpc result not encodable", "id", id, "method", req.Method, "error", err)
		resp = rpc.EncodeError(err)
	}
	c.respond(id, resp)
}

func (c *Controller) respond(id string, payload []byte) {
	ok, err := c.conn.Publish(c.rpcTopics.Response(id), payload, c.qos, false)
	switch {
	case err != nil:
		c.logger.Error("rpc response failed", "id", id, "error", err)
	case !ok:
		c.logger.Warn("rpc response dropped, not connected", "id", id)
	}
}

// OnConnect handles the connect event. An accepted connection resends the
// attribute snapshot and replays queued telemetry.
func (c *Controller) OnConnect(code mqtt.ConnectCode) {
	if code.Accepted() {
		c.logger.Info("connected to broker")
		c.resync()
	} else {
		c.logger.Warn("broker refused connection", "code", int(code), "reason", code.String())
	}
	c.observer.OnConnect(code)
}

// OnDisconnect handles the disconnect event.
func (c *Controller) OnDisconnect(code mqtt.ConnectCode) {
	if code == mqtt.CodeAccepted {
		c.logger.Info("disconnected from broker")
	} else {
		c.logger.Warn("connection lost", "code", int(code), "reason", code.String())
	}
	c.observer.OnDisconnect(code)
}

// OnPublish forwards publish acknowledgements to the observer.
func (c *Controller) OnPublish(id int) {
	c.observer.OnPublish(id)
}

// OnMessage dispatches RPC requests and forwards every message to the
// observer.
func (c *Controller) OnMessage(msg mqtt.Message) {
	if c.rpcEnabled {
		if id, ok := c.rpcTopics.RequestID(msg.Topic); ok {
			c.handleRPC(id, msg.Payload)
		}
	}
	c.observer.OnMessage(msg)
}

// OnSubscribe forwards subscribe acknowledgements to the observer.
func (c *Controller) OnSubscribe(id int) {
	c.observer.OnSubscribe(id)
}

// OnUnsubscribe forwards unsubscribe acknowledgements to the observer.
func (c *Controller) OnUnsubscribe(id int) {
	c.observer.OnUnsubscribe(id)
}
