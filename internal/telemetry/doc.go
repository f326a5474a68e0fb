// Package telemetry implements the device-side controller for the
// ThingsBoard-style device API.
//
// The Controller keeps two keyed models, telemetry and attributes, and
// tracks which keys changed since the last Send. Send emits
//
//	v1/devices/me/telemetry   {"ts": <unix ms>, "values": {<dirty keys>}}
//	v1/devices/me/attributes  {<dirty keys>}
//
// While disconnected, telemetry envelopes are queued and replayed in order
// after the next accepted connection. Attributes are not queued: the whole
// attribute model is resent once on every accepted connection.
//
// Basic usage:
//
//	conn, _ := mqtt.New(mqtt.StrategyThreaded, mqtt.WithLogger(log))
//	ctrl := telemetry.New(conn, telemetry.WithLogger(log))
//	_ = ctrl.Connect(telemetry.Config{Host: "broker", Port: 1883, Username: token})
//	for {
//		_ = ctrl.PublishTelemetry("temperature", 21.5)
//		_, _ = ctrl.Send()
//		_ = ctrl.Loop()
//	}
package telemetry
