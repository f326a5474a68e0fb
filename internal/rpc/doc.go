// Package rpc implements the handler table and wire format for
// broker-initiated remote procedure calls.
//
// A request arrives on {RequestPrefix}{id} carrying
// {"method": "...", "params": ...}. Handlers are tried in the order they
// were added; a handler that returns ErrNotHandled lets the next one try.
// The first result is published as JSON to {ResponsePrefix}{id}. A failing
// handler produces {"error": "..."} instead.
package rpc
