// Package mqtt provides the broker connection used by the device agent.
//
// This package manages:
//   - Client identity, credentials and TLS material (Configure)
//   - Non-blocking connection start with retry and refusal reporting
//   - The subscription set, reissued in full on every accepted connect
//   - Publishing with local hand-off semantics
//   - Delivery of connection events to a single application goroutine
//
// # Strategies
//
// Two implementations of Connection share one paho-backed session type,
// each owning its own session:
//
//	SingleThreadConnection  network goroutines wait for Loop to deliver
//	                        each event; Loop blocks up to the I/O timeout
//	ThreadSafeConnection    network goroutines enqueue events and move on;
//	                        Loop only drains the queue
//
// In both, Handler methods run on the goroutine calling Loop, so the layer
// above needs no locking.
//
// # Disconnected Operation
//
// Publish returns false while disconnected; callers treat that result as
// authoritative rather than a prior IsConnected check. Subscribe and
// Unsubscribe succeed while disconnected and take effect on the next
// accepted connect.
//
// # Reconnection
//
// The first connection is retried with exponential backoff (1s doubling to
// 30s). A refused CONNACK is reported as OnConnect with the refusal code; a
// transport failure as OnDisconnect(CodeConnectionLost). After the first
// accepted connect paho's auto-reconnect takes over with the same bounds.
//
// # Usage
//
//	conn := mqtt.NewThreadSafe(mqtt.WithLogger(log))
//	conn.SetHandler(controller)
//	if err := conn.Configure(mqtt.ClientOptions{Username: token}); err != nil {
//	    return err
//	}
//	if err := conn.Connect("thingsboard.local", 1883, 60); err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	for ctx.Err() == nil {
//	    conn.Loop()
//	    time.Sleep(100 * time.Millisecond)
//	}
package mqtt
