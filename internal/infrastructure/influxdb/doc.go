// Package influxdb mirrors device telemetry into a local InfluxDB bucket.
//
// It wraps the official influxdb-client-go v2 library. Every telemetry
// envelope the controller builds becomes one point in the "telemetry"
// measurement and every batch of changed attributes one point in
// "attributes". The device name is added as a default tag on the write
// API, so the local history is complete even while the broker is
// unreachable.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, "boiler-room")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctrl := telemetry.New(conn, telemetry.WithRecorder(client))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb
