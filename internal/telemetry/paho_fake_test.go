package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoToken is an already completed paho token.
type pahoToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *pahoToken {
	t := &pahoToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *pahoToken) Wait() bool                     { return true }
func (t *pahoToken) WaitTimeout(time.Duration) bool { return true }
func (t *pahoToken) Done() <-chan struct{}          { return t.done }
func (t *pahoToken) Error() error                   { return t.err }

type pahoMessage struct {
	topic   string
	payload []byte
}

func (m pahoMessage) Duplicate() bool   { return false }
func (m pahoMessage) Qos() byte         { return 1 }
func (m pahoMessage) Retained() bool    { return false }
func (m pahoMessage) Topic() string     { return m.topic }
func (m pahoMessage) MessageID() uint16 { return 0 }
func (m pahoMessage) Payload() []byte   { return m.payload }
func (m pahoMessage) Ack()              {}

// pahoClient stands in for the broker side of a paho client, so the real
// connection strategies can run under the Controller.
type pahoClient struct {
	opts pahomqtt.ClientOptions

	mu         sync.Mutex
	connected  bool
	published  []published
	subscribed []string
}

var _ pahomqtt.Client = (*pahoClient)(nil)

func (c *pahoClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *pahoClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *pahoClient) Connect() pahomqtt.Token {
	c.reconnect()
	return doneToken(nil)
}

func (c *pahoClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *pahoClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return doneToken(pahomqtt.ErrNotConnected)
	}
	c.published = append(c.published, published{Topic: topic, Payload: payload.([]byte)})
	return doneToken(nil)
}

func (c *pahoClient) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return doneToken(pahomqtt.ErrNotConnected)
	}
	c.subscribed = append(c.subscribed, topic)
	return doneToken(nil)
}

func (c *pahoClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, cb)
	}
	return doneToken(nil)
}

func (c *pahoClient) Unsubscribe(...string) pahomqtt.Token { return doneToken(nil) }

func (c *pahoClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *pahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// drop simulates paho noticing a dead connection.
func (c *pahoClient) drop() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	go c.opts.OnConnectionLost(c, errors.New("connection reset"))
}

// reconnect simulates an accepted CONNACK, first or automatic.
func (c *pahoClient) reconnect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	go c.opts.OnConnect(c)
}

// deliver simulates an inbound message routed to the default handler.
func (c *pahoClient) deliver(topic, payload string) {
	go c.opts.DefaultPublishHandler(c, pahoMessage{topic: topic, payload: []byte(payload)})
}

func (c *pahoClient) wire() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func (c *pahoClient) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

type pahoFactory struct {
	mu      sync.Mutex
	clients []*pahoClient
}

func (f *pahoFactory) newClient(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	c := &pahoClient{opts: *opts}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c
}

func (f *pahoFactory) last(t *testing.T) *pahoClient {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		t.Fatal("no paho client created")
	}
	return f.clients[len(f.clients)-1]
}

func onTopic(ps []published, topic string) []published {
	var out []published
	for _, p := range ps {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}
