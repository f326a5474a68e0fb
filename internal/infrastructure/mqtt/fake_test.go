package mqtt

import (
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fake paho client
// =============================================================================

type fakeToken struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	t := newFakeToken()
	t.complete(err)
	return t
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

type fakeMessage struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return m.qos }
func (m fakeMessage) Retained() bool    { return m.retain }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakePublish struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

type fakeClient struct {
	opts pahomqtt.ClientOptions

	mu             sync.Mutex
	connectResults []error
	connectCalls   int
	connected      bool
	disconnects    int
	published      []fakePublish
	subscribed     []Subscription
	unsubscribed   []string

	publishErr     error
	subscribeErr   error
	unsubscribeErr error
	holdAcks       bool
	held           []*fakeToken

	// beforeSubscribe, when set, runs at the start of every Subscribe
	// call on the calling goroutine.
	beforeSubscribe func(topic string)
}

var _ pahomqtt.Client = (*fakeClient)(nil)

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	var err error
	if c.connectCalls < len(c.connectResults) {
		err = c.connectResults[c.connectCalls]
	}
	c.connectCalls++
	if err == nil {
		c.connected = true
	}
	c.mu.Unlock()

	if err == nil && c.opts.OnConnect != nil {
		go c.opts.OnConnect(c)
	}
	return completedToken(err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) ack(err error) pahomqtt.Token {
	if c.holdAcks && err == nil {
		t := newFakeToken()
		c.held = append(c.held, t)
		return t
	}
	return completedToken(err)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return completedToken(pahomqtt.ErrNotConnected)
	}
	if c.publishErr != nil {
		return completedToken(c.publishErr)
	}
	c.published = append(c.published, fakePublish{topic: topic, payload: payload.([]byte), qos: qos, retain: retained})
	return c.ack(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	if c.beforeSubscribe != nil {
		c.beforeSubscribe(topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return completedToken(pahomqtt.ErrNotConnected)
	}
	if c.subscribeErr != nil {
		return completedToken(c.subscribeErr)
	}
	c.subscribed = append(c.subscribed, Subscription{Topic: topic, QoS: QoS(qos)})
	return c.ack(nil)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, cb)
	}
	return completedToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return completedToken(pahomqtt.ErrNotConnected)
	}
	if c.unsubscribeErr != nil {
		return completedToken(c.unsubscribeErr)
	}
	c.unsubscribed = append(c.unsubscribed, topics...)
	return c.ack(nil)
}

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// loseConnection simulates paho detecting a dropped session.
func (c *fakeClient) loseConnection(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	go c.opts.OnConnectionLost(c, err)
}

// deliver simulates paho's router invoking the default handler.
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.opts.DefaultPublishHandler(c, fakeMessage{topic: topic, payload: payload, qos: 1})
}

func (c *fakeClient) publishes() []fakePublish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakePublish(nil), c.published...)
}

func (c *fakeClient) subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Subscription(nil), c.subscribed...)
}

func (c *fakeClient) unsubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribed...)
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// fakeFactory records every client a connection creates.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	setup   func(*fakeClient)
}

func (f *fakeFactory) newClient(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	c := &fakeClient{opts: *opts}
	if f.setup != nil {
		f.setup(c)
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *fakeFactory) last(t *testing.T) *fakeClient {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		t.Fatal("no client created")
	}
	return f.clients[len(f.clients)-1]
}

// =============================================================================
// Recording handler
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []Message
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) OnConnect(code ConnectCode)    { r.add("connect:%d", code) }
func (r *recorder) OnDisconnect(code ConnectCode) { r.add("disconnect:%d", code) }
func (r *recorder) OnPublish(id int)              { r.add("publish:%d", id) }
func (r *recorder) OnSubscribe(id int)            { r.add("subscribe:%d", id) }
func (r *recorder) OnUnsubscribe(id int)          { r.add("unsubscribe:%d", id) }

func (r *recorder) OnMessage(msg Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.add("message:%s", msg.Topic)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// =============================================================================
// Helpers
// =============================================================================

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testOptions(f *fakeFactory) []Option {
	return []Option{
		WithClientFactory(f.newClient),
		WithIOTimeout(2 * time.Second),
		WithRetryBackoff(5*time.Millisecond, 20*time.Millisecond),
	}
}

// connectedThreaded returns a threaded connection that has delivered its
// first accepted connect.
func connectedThreaded(t *testing.T, f *fakeFactory, h Handler) *ThreadSafeConnection {
	t.Helper()
	conn := NewThreadSafe(testOptions(f)...)
	t.Cleanup(func() { conn.Close() })
	conn.SetHandler(h)

	require.NoError(t, conn.Configure(ClientOptions{ClientID: "test"}))
	require.NoError(t, conn.Connect("broker.local", 1883, 60))
	waitFor(t, "connect event", func() bool { return conn.Pending() > 0 })
	require.NoError(t, conn.Loop())
	return conn
}

// connectedSingle returns a single-thread connection that has delivered
// its first accepted connect.
func connectedSingle(t *testing.T, f *fakeFactory, h Handler) *SingleThreadConnection {
	t.Helper()
	conn := NewSingleThread(testOptions(f)...)
	t.Cleanup(func() { conn.Close() })
	conn.SetHandler(h)

	require.NoError(t, conn.Configure(ClientOptions{ClientID: "test"}))
	require.NoError(t, conn.Connect("broker.local", 1883, 60))
	require.NoError(t, conn.Loop())
	require.True(t, conn.IsConnected(), "connect delivered by the first Loop")
	return conn
}
