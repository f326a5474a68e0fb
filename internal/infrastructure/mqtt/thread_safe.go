package mqtt

// ThreadSafeConnection lets paho's goroutines drive the network on their
// own. Their callbacks only flip the connected flag and append events to a
// queue; Loop drains that queue on the application goroutine and never
// waits for the network.
//
// Events are delivered in the order each paho goroutine produced them.
type ThreadSafeConnection struct {
	*session
}

var _ Connection = (*ThreadSafeConnection)(nil)

// NewThreadSafe creates an unconfigured threaded connection.
func NewThreadSafe(opts ...Option) *ThreadSafeConnection {
	c := &ThreadSafeConnection{session: newSession(opts)}
	c.session.emit = c.handoff
	return c
}

// handoff records the connection state and queues ev without waiting.
func (c *ThreadSafeConnection) handoff(ev Event) {
	c.observe(ev)
	c.events.Push(envelope{ev: ev})
}

// Loop delivers every queued event to the Handler. It never blocks.
func (c *ThreadSafeConnection) Loop() error {
	if err := c.ready(); err != nil {
		return err
	}
	c.events.Drain(c.dispatch)
	return nil
}

// Pending returns the number of events waiting for Loop.
func (c *ThreadSafeConnection) Pending() int {
	return c.events.Len()
}
