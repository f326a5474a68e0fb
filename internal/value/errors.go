package value

import "errors"

// Sentinel errors for value conversion.
var (
	// ErrUnsupported is returned when a Go value has no canonical form.
	ErrUnsupported = errors.New("value: unsupported type")

	// ErrMalformedJSON is returned when Decode is given invalid JSON.
	ErrMalformedJSON = errors.New("value: malformed JSON")
)
