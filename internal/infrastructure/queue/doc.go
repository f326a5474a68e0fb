// Package queue provides the generic FIFO used to move connection events
// from MQTT network goroutines to the application goroutine.
//
// # Usage
//
//	events := queue.New[mqtt.Event]()
//
//	// network goroutine
//	events.Push(ev)
//
//	// application goroutine
//	select {
//	case <-events.Ready():
//	case <-time.After(timeout):
//	}
//	events.Drain(dispatch)
//
// # Thread Safety
//
// Push, Pop, Len and Drain are safe for concurrent use. The queue is meant
// to have exactly one consumer; with several consumers Ready wake-ups may
// be observed by a goroutine that finds the queue already empty.
package queue
