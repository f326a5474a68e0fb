package telemetry

import "errors"

// Domain-specific errors for the controller.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrHostRequired is returned by Connect when no broker host is set.
	ErrHostRequired = errors.New("telemetry: broker host is required")

	// ErrInvalidPort is returned by Connect for ports outside 1-65535.
	ErrInvalidPort = errors.New("telemetry: broker port must be 1-65535")

	// ErrEmptyKey is returned when a telemetry or attribute key is empty.
	ErrEmptyKey = errors.New("telemetry: key cannot be empty")

	// ErrInvalidValue is returned when a value cannot be represented as JSON.
	ErrInvalidValue = errors.New("telemetry: invalid value")

	// ErrSendFailed is returned when the transport rejects a payload for a
	// reason other than being disconnected.
	ErrSendFailed = errors.New("telemetry: send failed")
)
