package mqtt

import (
	"fmt"
	"time"
)

// Strategy names accepted by New.
const (
	StrategySingleThread = "single"
	StrategyThreaded     = "threaded"
)

// Connection is a broker session driven from one application goroutine.
//
// All Handler callbacks are invoked on the goroutine that calls Loop (or
// Close), never on a network goroutine, so handlers may touch application
// state without locking.
type Connection interface {
	// Configure sets client identity, credentials and TLS material.
	// A second call on a configured connection is a no-op.
	Configure(opts ClientOptions) error

	// Connect starts connecting to host:port and returns without waiting
	// for the handshake. The outcome is reported through OnConnect.
	Connect(host string, port int, keepAlive int) error

	// ConnectBind is Connect with the local socket bound to bindAddress.
	ConnectBind(host, bindAddress string, port int, keepAlive int) error

	// Disconnect closes the session without waiting for confirmation.
	Disconnect()

	// Subscribe records topic in the subscription set and requests it from
	// the broker. Being disconnected is not an error: the subscription is
	// issued on the next accepted connect.
	Subscribe(topic string, qos QoS) error

	// Unsubscribe removes topic at every QoS level and asks the broker to
	// drop it. Being disconnected is not an error.
	Unsubscribe(topic string) error

	// Publish hands a message to the transport. It returns false only when
	// the session is not connected; true means local hand-off, not broker
	// acknowledgement.
	Publish(topic string, payload []byte, qos QoS, retain bool) (bool, error)

	// Loop delivers pending events to the Handler. It must be called
	// regularly by the application.
	Loop() error

	// IsConnected reports the state observed through the last delivered
	// (single-thread) or received (threaded) connection event.
	IsConnected() bool

	// SetHandler installs the event sink. A nil handler discards events.
	SetHandler(h Handler)

	// Close stops the session, delivers any remaining events and releases
	// the underlying client. Close is idempotent.
	Close() error
}

// New creates a connection using the named strategy.
func New(strategy string, opts ...Option) (Connection, error) {
	switch strategy {
	case StrategySingleThread, "":
		return NewSingleThread(opts...), nil
	case StrategyThreaded:
		return NewThreadSafe(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// QoS is the MQTT quality-of-service level.
type QoS byte

// QoS levels.
const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q <= maxQoS
}

// Message is an inbound application message.
type Message struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// EventKind identifies a connection event.
type EventKind uint8

// Event kinds.
const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventPublish
	EventMessage
	EventSubscribe
	EventUnsubscribe
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventPublish:
		return "publish"
	case EventMessage:
		return "message"
	case EventSubscribe:
		return "subscribe"
	case EventUnsubscribe:
		return "unsubscribe"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is a connection event as it travels from a network goroutine to
// the application goroutine. Events are passed by value.
type Event struct {
	Kind EventKind

	// Code is the CONNACK result for EventConnect and the reason for
	// EventDisconnect (CodeAccepted for a requested disconnect).
	Code ConnectCode

	// MessageID is a per-connection sequence number, starting at 1, that
	// Publish, Subscribe and Unsubscribe draw in call order. It is not the
	// MQTT packet identifier and the calls do not return it, so it cannot
	// tie an acknowledgement to one request. Use it to count or order acks.
	MessageID int

	// Message is set for EventMessage.
	Message Message

	// At is when the network goroutine observed the event.
	At time.Time
}

// Handler receives connection events on the application goroutine.
//
// OnPublish, OnSubscribe and OnUnsubscribe receive Event.MessageID. Ids
// grow with each request but acknowledgements are delivered as the broker
// completes them.
type Handler interface {
	OnConnect(code ConnectCode)
	OnDisconnect(code ConnectCode)
	OnPublish(id int)
	OnMessage(msg Message)
	OnSubscribe(id int)
	OnUnsubscribe(id int)
}

// NopHandler ignores every event. Embed it to implement only some methods.
type NopHandler struct{}

func (NopHandler) OnConnect(ConnectCode)    {}
func (NopHandler) OnDisconnect(ConnectCode) {}
func (NopHandler) OnPublish(int)            {}
func (NopHandler) OnMessage(Message)        {}
func (NopHandler) OnSubscribe(int)          {}
func (NopHandler) OnUnsubscribe(int)        {}

// Deliver invokes the Handler method matching ev.Kind.
func Deliver(h Handler, ev Event) {
	switch ev.Kind {
	case EventConnect:
		h.OnConnect(ev.Code)
	case EventDisconnect:
		h.OnDisconnect(ev.Code)
	case EventPublish:
		h.OnPublish(ev.MessageID)
	case EventMessage:
		h.OnMessage(ev.Message)
	case EventSubscribe:
		h.OnSubscribe(ev.MessageID)
	case EventUnsubscribe:
		h.OnUnsubscribe(ev.MessageID)
	}
}
