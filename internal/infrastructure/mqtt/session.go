package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/queue"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// envelope carries an event through the queue. ack is closed once the
// event has been delivered; it is nil when the producer does not wait.
type envelope struct {
	ev  Event
	ack chan struct{}
}

// session is the paho-backed state owned by exactly one strategy.
//
// paho runs its own network goroutines. The session's callbacks on those
// goroutines only update the subscription set, the connected flag and the
// event queue; everything else happens on the application goroutine.
type session struct {
	settings

	// emit hands an event from a network goroutine to the application
	// goroutine. Set by the owning strategy.
	emit func(Event)

	// observeOnDispatch makes the connected flag follow delivered events
	// instead of received ones.
	observeOnDispatch bool

	mu         sync.Mutex
	configured bool
	closed     bool
	pahoOpts   *pahomqtt.ClientOptions
	client     pahomqtt.Client
	stopRetry  context.CancelFunc

	subs      subscriptionSet
	connected atomic.Bool
	nextID    atomic.Int64

	events *queue.Queue[envelope]
	done   chan struct{}
	wg     sync.WaitGroup

	handlerMu sync.RWMutex
	handler   Handler
}

func newSession(opts []Option) *session {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	return &session{
		settings: st,
		events:   queue.New[envelope](),
		done:     make(chan struct{}),
		handler:  NopHandler{},
	}
}

// Configure implements Connection.
func (s *session) Configure(opts ClientOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.configured {
		return nil
	}
	if s.newClient == nil {
		return fmt.Errorf("%w: no client factory", ErrInitFailed)
	}
	if err := validateClientOptions(opts); err != nil {
		return err
	}
	if opts.ClientID == "" {
		opts.ClientID = generateClientID()
	}

	po, err := buildClientOptions(opts, s.settings)
	if err != nil {
		return err
	}
	po.SetOnConnectHandler(s.handleConnect)
	po.SetConnectionLostHandler(s.handleConnectionLost)
	po.SetDefaultPublishHandler(s.handleMessage)
	po.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.logger.Info("MQTT reconnecting")
	})

	s.pahoOpts = po
	s.configured = true
	return nil
}

// Connect implements Connection.
func (s *session) Connect(host string, port int, keepAlive int) error {
	return s.ConnectBind(host, "", port, keepAlive)
}

// ConnectBind implements Connection.
func (s *session) ConnectBind(host, bindAddress string, port int, keepAlive int) error {
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrConnectionFailed)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrConnectionFailed, port)
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}

	dialer := &net.Dialer{Timeout: defaultConnectTimeout}
	if bindAddress != "" {
		ip := net.ParseIP(bindAddress)
		if ip == nil {
			return fmt.Errorf("%w: bind address %q is not an IP address", ErrConnectionFailed, bindAddress)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.configured {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ErrNotConfigured)
	}

	scheme := "tcp"
	if s.pahoOpts.TLSConfig != nil {
		scheme = "ssl"
	}

	po := *s.pahoOpts
	po.Servers = nil
	po.AddBroker(scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)))
	po.SetKeepAlive(time.Duration(keepAlive) * time.Second)
	po.SetDialer(dialer)

	client := s.newClient(&po)
	if client == nil {
		return fmt.Errorf("%w: client factory returned nil", ErrConnectionFailed)
	}

	s.releaseLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.client = client
	s.stopRetry = cancel
	s.spawnLocked(func() { s.runConnect(ctx, client) })

	return nil
}

// runConnect performs the initial connection, retrying with exponential
// backoff until it is accepted or cancelled. Once accepted, paho's own
// auto-reconnect takes over.
func (s *session) runConnect(ctx context.Context, client pahomqtt.Client) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = s.retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0

	for {
		token := client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return
		}

		err := token.Error()
		if err == nil || ctx.Err() != nil {
			return
		}

		delay := b.NextBackOff()
		if code, refused := codeFromError(err); refused {
			s.logger.Warn("MQTT connection refused", "code", code.String(), "retry_in", delay)
			s.emit(Event{Kind: EventConnect, Code: code, At: time.Now()})
		} else {
			s.logger.Warn("MQTT connection attempt failed", "error", err, "retry_in", delay)
			s.emit(Event{Kind: EventDisconnect, Code: CodeConnectionLost, At: time.Now()})
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Disconnect implements Connection.
func (s *session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.client
	if client == nil || s.closed {
		return
	}
	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}
	s.client = nil
	s.subs.goDown()

	s.spawnLocked(func() {
		client.Disconnect(defaultDisconnectQuiesce)
		s.emit(Event{Kind: EventDisconnect, Code: CodeAccepted, At: time.Now()})
	})
}

// releaseLocked abandons the current client, if any, without reporting a
// disconnect. s.mu must be held.
func (s *session) releaseLocked() {
	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}
	s.subs.goDown()
	if old := s.client; old != nil {
		s.client = nil
		s.spawnLocked(func() { old.Disconnect(defaultDisconnectQuiesce) })
	}
}

// Subscribe implements Connection.
func (s *session) Subscribe(topic string, qos QoS) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	if !qos.Valid() {
		return ErrInvalidQoS
	}

	added, live := s.subs.add(topic, qos)
	if !live {
		return nil
	}
	client := s.currentClient()
	if client == nil {
		return nil
	}

	token := client.Subscribe(topic, byte(qos), nil)
	if done, err := tokenResult(token); done && err != nil {
		if errors.Is(err, pahomqtt.ErrNotConnected) || !client.IsConnectionOpen() {
			return nil
		}
		if added {
			s.subs.removeAt(topic, qos)
		}
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	s.track(token, Event{Kind: EventSubscribe, MessageID: s.newID()}, "subscribe", topic)
	return nil
}

// Unsubscribe implements Connection.
func (s *session) Unsubscribe(topic string) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}

	if _, live := s.subs.remove(topic); !live {
		return nil
	}
	client := s.currentClient()
	if client == nil {
		return nil
	}

	token := client.Unsubscribe(topic)
	if done, err := tokenResult(token); done && err != nil {
		if errors.Is(err, pahomqtt.ErrNotConnected) || !client.IsConnectionOpen() {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	s.track(token, Event{Kind: EventUnsubscribe, MessageID: s.newID()}, "unsubscribe", topic)
	return nil
}

// Publish implements Connection.
func (s *session) Publish(topic string, payload []byte, qos QoS, retain bool) (bool, error) {
	if err := ValidateTopicName(topic); err != nil {
		return false, err
	}
	if !qos.Valid() {
		return false, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return false, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	client := s.currentClient()
	if client == nil || !s.connected.Load() {
		return false, nil
	}

	token := client.Publish(topic, byte(qos), retain, payload)
	if done, err := tokenResult(token); done && err != nil {
		if errors.Is(err, pahomqtt.ErrNotConnected) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	s.track(token, Event{Kind: EventPublish, MessageID: s.newID()}, "publish", topic)
	return true, nil
}

// IsConnected implements Connection.
func (s *session) IsConnected() bool {
	return s.connected.Load()
}

// SetHandler implements Connection.
func (s *session) SetHandler(h Handler) {
	if h == nil {
		h = NopHandler{}
	}
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// Subscriptions returns the current subscription set ordered by QoS level.
func (s *session) Subscriptions() []Subscription {
	return s.subs.list()
}

// Close implements Connection.
//
// It stops the producers, waits for them, delivers whatever they queued and
// only then drops the client.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}
	client := s.client
	s.client = nil
	s.subs.goDown()
	s.mu.Unlock()

	close(s.done)

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
	s.wg.Wait()

	s.events.Drain(s.dispatch)
	s.connected.Store(false)
	return nil
}

// ready reports whether Loop may run.
func (s *session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.configured {
		return ErrNotConfigured
	}
	return nil
}

// dispatch delivers one event on the application goroutine.
func (s *session) dispatch(env envelope) {
	defer func() {
		if env.ack != nil {
			close(env.ack)
		}
		if r := recover(); r != nil {
			s.logger.Error("MQTT event handler panic recovered",
				"event", env.ev.Kind.String(),
				"panic", r,
			)
		}
	}()

	if s.observeOnDispatch {
		s.observe(env.ev)
	}

	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	Deliver(h, env.ev)
}

// observe updates the connected flag from a connection event.
func (s *session) observe(ev Event) {
	switch ev.Kind {
	case EventConnect:
		s.connected.Store(ev.Code.Accepted())
	case EventDisconnect:
		s.connected.Store(false)
	}
}

// handleConnect runs on a paho goroutine after every accepted CONNACK.
// The subscription set is reissued before the connect event is emitted.
// The snapshot and the live flag change under one lock, so a concurrent
// Subscribe or Unsubscribe is either in the snapshot or sent by its caller.
func (s *session) handleConnect(client pahomqtt.Client) {
	if !s.isCurrent(client) {
		return
	}

	for _, sub := range s.subs.goLive() {
		token := client.Subscribe(sub.Topic, byte(sub.QoS), nil)
		s.track(token, Event{}, "resubscribe", sub.Topic)
	}

	s.logger.Info("MQTT connected")
	s.emit(Event{Kind: EventConnect, Code: CodeAccepted, At: time.Now()})
}

// handleConnectionLost runs on a paho goroutine when an established
// session drops.
func (s *session) handleConnectionLost(client pahomqtt.Client, err error) {
	if !s.isCurrent(client) {
		return
	}
	s.subs.goDown()
	s.logger.Warn("MQTT connection lost", "error", err)
	s.emit(Event{Kind: EventDisconnect, Code: CodeConnectionLost, At: time.Now()})
}

// handleMessage runs on paho's router goroutine for every inbound message.
func (s *session) handleMessage(client pahomqtt.Client, msg pahomqtt.Message) {
	if !s.isCurrent(client) {
		return
	}
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	s.emit(Event{
		Kind: EventMessage,
		Message: Message{
			Topic:   msg.Topic(),
			Payload: payload,
			QoS:     QoS(msg.Qos()),
			Retain:  msg.Retained(),
		},
		At: time.Now(),
	})
}

// track waits for token on a producer goroutine and emits ev once it
// completes successfully. A zero ev only logs failures.
func (s *session) track(token pahomqtt.Token, ev Event, op, topic string) {
	s.spawn(func() {
		select {
		case <-token.Done():
		case <-s.done:
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warn("MQTT "+op+" failed", "topic", topic, "error", err)
			return
		}
		if ev.Kind != 0 {
			ev.At = time.Now()
			s.emit(ev)
		}
	})
}

// spawn starts a producer goroutine unless the session is closed.
func (s *session) spawn(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawnLocked(fn)
}

func (s *session) spawnLocked(fn func()) {
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *session) currentClient() pahomqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *session) isCurrent(client pahomqtt.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client == client
}

func (s *session) newID() int {
	return int(s.nextID.Add(1))
}

// tokenResult reports a token's error if it has already completed.
func tokenResult(token pahomqtt.Token) (bool, error) {
	select {
	case <-token.Done():
		return true, token.Error()
	default:
		return false, nil
	}
}
