package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
)

type published struct {
	Topic   string
	Payload []byte
	QoS     mqtt.QoS
}

// fakeConn is an in-memory mqtt.Connection. Events are delivered
// synchronously by the test helpers, standing in for Loop.
type fakeConn struct {
	handler mqtt.Handler

	connected  bool
	configured *mqtt.ClientOptions

	host, bind      string
	port, keepAlive int

	// publishLimit, when positive, makes Publish report "not connected"
	// after that many successful publishes.
	publishLimit int
	publishErr   error
	failPayload  string

	published    []published
	subscribed   []string
	loops        int
	disconnected int
	closed       bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{handler: mqtt.NopHandler{}}
}

func (f *fakeConn) Configure(opts mqtt.ClientOptions) error {
	f.configured = &opts
	return nil
}

func (f *fakeConn) Connect(host string, port, keepAlive int) error {
	f.host, f.port, f.keepAlive = host, port, keepAlive
	return nil
}

func (f *fakeConn) ConnectBind(host, bind string, port, keepAlive int) error {
	f.bind = bind
	return f.Connect(host, port, keepAlive)
}

func (f *fakeConn) Disconnect() { f.disconnected++ }

func (f *fakeConn) Subscribe(topic string, _ mqtt.QoS) error {
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeConn) Unsubscribe(string) error { return nil }

func (f *fakeConn) Publish(topic string, payload []byte, qos mqtt.QoS, _ bool) (bool, error) {
	if f.publishErr != nil {
		return false, f.publishErr
	}
	if f.failPayload != "" && string(payload) == f.failPayload {
		return false, errors.New("payload rejected")
	}
	if !f.connected {
		return false, nil
	}
	if f.publishLimit > 0 && len(f.published) >= f.publishLimit {
		f.connected = false
		return false, nil
	}
	f.published = append(f.published, published{Topic: topic, Payload: payload, QoS: qos})
	return true, nil
}

func (f *fakeConn) Loop() error {
	f.loops++
	return nil
}

func (f *fakeConn) IsConnected() bool { return f.connected }

func (f *fakeConn) SetHandler(h mqtt.Handler) {
	if h == nil {
		h = mqtt.NopHandler{}
	}
	f.handler = h
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

// accept simulates an accepted connection event.
func (f *fakeConn) accept() {
	f.connected = true
	f.handler.OnConnect(mqtt.CodeAccepted)
}

// drop simulates losing the connection.
func (f *fakeConn) drop() {
	f.connected = false
	f.handler.OnDisconnect(mqtt.CodeConnectionLost)
}

func (f *fakeConn) on(topic string) []published {
	var out []published
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeConn) reset() { f.published = nil }

type observed struct {
	mqtt.NopHandler
	mu     sync.Mutex
	events []string
}

func (o *observed) OnConnect(code mqtt.ConnectCode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "connect:"+code.String())
}

func (o *observed) OnMessage(msg mqtt.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "message:"+msg.Topic)
}

type recorded struct {
	ts     time.Time
	values map[string]any
}

type fakeRecorder struct {
	calls []recorded
	attrs []recorded
}

func (r *fakeRecorder) RecordTelemetry(ts time.Time, values map[string]any) {
	r.calls = append(r.calls, recorded{ts: ts, values: values})
}

func (r *fakeRecorder) RecordAttributes(ts time.Time, values map[string]any) {
	r.attrs = append(r.attrs, recorded{ts: ts, values: values})
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock returns a clock advancing one second per call.
func stepClock() func() time.Time {
	t := testEpoch
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func decodeEnvelope(t *testing.T, p published) (int64, map[string]any) {
	t.Helper()
	var env struct {
		TS     int64          `json:"ts"`
		Values map[string]any `json:"values"`
	}
	require.NoError(t, json.Unmarshal(p.Payload, &env), "envelope %s", p.Payload)
	return env.TS, env.Values
}

func decodeObject(t *testing.T, p published) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(p.Payload, &doc), "object %s", p.Payload)
	return doc
}
