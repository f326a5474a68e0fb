package rpc

import "errors"

// Sentinel errors for RPC dispatch.
var (
	// ErrNotHandled is returned by a Handler to decline a call.
	ErrNotHandled = errors.New("rpc: not handled")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("rpc: handler panicked")

	// ErrMalformedRequest is returned for request payloads that cannot be decoded.
	ErrMalformedRequest = errors.New("rpc: malformed request")

	// ErrInvalidResult is returned when a handler result cannot be encoded.
	ErrInvalidResult = errors.New("rpc: invalid result")
)
