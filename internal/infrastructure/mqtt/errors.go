package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConfigured is returned when a connection is used before Configure.
	ErrNotConfigured = errors.New("mqtt: connection not configured")

	// ErrInitFailed is returned when the underlying client cannot be created.
	ErrInitFailed = errors.New("mqtt: client initialisation failed")

	// ErrInvalidArgument is returned by Configure for unusable client options.
	ErrInvalidArgument = errors.New("mqtt: invalid argument")

	// ErrTLSSetup is returned when CA, certificate or key material cannot be loaded.
	ErrTLSSetup = errors.New("mqtt: TLS setup failed")

	// ErrConnectionFailed is returned when a connection attempt cannot be started.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrClosed is returned when a closed connection is used.
	ErrClosed = errors.New("mqtt: connection closed")

	// ErrUnknownStrategy is returned by New for an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("mqtt: unknown connection strategy")
)
