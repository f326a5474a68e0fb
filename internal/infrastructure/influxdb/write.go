package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementTelemetry = "telemetry"
	measurementAttribute = "attributes"
)

// RecordTelemetry writes one telemetry envelope as a single point at ts.
// Keys become fields; see fieldValue for the type mapping.
func (c *Client) RecordTelemetry(ts time.Time, values map[string]any) {
	c.write(measurementTelemetry, ts, values)
}

// RecordAttributes writes the changed attributes as a single point at ts.
func (c *Client) RecordAttributes(ts time.Time, values map[string]any) {
	c.write(measurementAttribute, ts, values)
}

// write queues one point. The device tag is added by the WriteAPI.
func (c *Client) write(measurement string, ts time.Time, values map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := Fields(values)
	if len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, nil, fields, ts))
}

// Fields converts canonical JSON values into InfluxDB fields. Numbers are
// written as floats so a key never changes field type between integer and
// fractional samples. Containers are stored as their JSON text and nulls
// are skipped.
func Fields(values map[string]any) map[string]interface{} {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		if f, ok := fieldValue(v); ok {
			fields[k] = f
		}
	}
	return fields
}

func fieldValue(v any) (interface{}, bool) {
	switch v := v.(type) {
	case nil:
		return nil, false
	case bool, string, float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return string(data), true
	}
}
