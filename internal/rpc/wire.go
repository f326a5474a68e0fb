package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/thingsmqtt/internal/value"
)

// Request is a decoded server-side RPC call.
type Request struct {
	// ID is the request identifier taken from the topic.
	ID     string
	Method string
	// Params is a canonical value, nil when absent.
	Params any
}

// Topics names the request and response topic prefixes.
type Topics struct {
	RequestPrefix  string
	ResponsePrefix string
}

// RequestFilter returns the subscription filter matching every request.
func (t Topics) RequestFilter() string {
	return t.RequestPrefix + "+"
}

// Response returns the topic answering request id.
func (t Topics) Response(id string) string {
	return t.ResponsePrefix + id
}

// RequestID extracts the request identifier from topic. The boolean is
// false when topic is not a request topic.
func (t Topics) RequestID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.RequestPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// ParseRequest decodes a request payload of the form
// {"method": "name", "params": <any>}.
func ParseRequest(id string, payload []byte) (Request, error) {
	doc, err := value.DecodeObject(payload)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	method, ok := doc["method"].(string)
	if !ok || method == "" {
		return Request{}, fmt.Errorf("%w: missing method", ErrMalformedRequest)
	}

	return Request{ID: id, Method: method, Params: doc["params"]}, nil
}

// EncodeResult renders a handler result as a response payload.
func EncodeResult(result any) ([]byte, error) {
	canonical, err := value.FromNative(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}
	return data, nil
}

// EncodeError renders a failed call as {"error": "..."}.
func EncodeError(err error) []byte {
	data, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return data
}
