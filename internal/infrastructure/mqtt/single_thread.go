package mqtt

import "time"

// SingleThreadConnection runs the session cooperatively with the
// application goroutine.
//
// Network goroutines hand each event over and wait until Loop has
// delivered it, so broker traffic is processed only while the application
// is inside Loop. Loop blocks for up to the I/O timeout waiting for the
// first event. The connected flag changes only when Loop delivers a
// connect or disconnect event.
type SingleThreadConnection struct {
	*session
}

var _ Connection = (*SingleThreadConnection)(nil)

// NewSingleThread creates an unconfigured single-thread connection.
func NewSingleThread(opts ...Option) *SingleThreadConnection {
	c := &SingleThreadConnection{session: newSession(opts)}
	c.session.emit = c.handoff
	c.session.observeOnDispatch = true
	return c
}

// handoff queues ev and waits until Loop has delivered it or the
// connection is closed.
func (c *SingleThreadConnection) handoff(ev Event) {
	ack := make(chan struct{})
	c.events.Push(envelope{ev: ev, ack: ack})

	select {
	case <-ack:
	case <-c.done:
	}
}

// Loop waits up to the I/O timeout for network events and delivers every
// available event to the Handler before returning.
func (c *SingleThreadConnection) Loop() error {
	if err := c.ready(); err != nil {
		return err
	}

	if c.events.Len() == 0 {
		timer := time.NewTimer(c.ioTimeout)
		defer timer.Stop()

		// A ready signal may be left over from an event an earlier Drain
		// already delivered.
		for c.events.Len() == 0 {
			select {
			case <-c.events.Ready():
			case <-timer.C:
				return nil
			case <-c.done:
				return ErrClosed
			}
		}
	}

	c.events.Drain(c.dispatch)
	return nil
}
