package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/thingsmqtt/internal/rpc"
)

// errUnknownKey is returned by the read-back methods for keys never set.
var errUnknownKey = errors.New("unknown key")

// stateReader is the read side of the controller.
type stateReader interface {
	Telemetry(key string) (any, bool)
	Attribute(key string) (any, bool)
}

// builtinHandler answers the agent's own RPC methods:
//
//	ping                         {"pong": true, "version": "..."}
//	getTime                      {"time": "<RFC 3339>"}
//	getTelemetry {"key": "k"}    {"key": "k", "value": <v>}
//	getAttribute {"key": "k"}    {"key": "k", "value": <v>}
//
// Other methods are left to later handlers.
func builtinHandler(r stateReader) rpc.Handler {
	return func(method string, params any) (any, error) {
		switch method {
		case "ping":
			return map[string]any{"pong": true, "version": version}, nil
		case "getTime":
			return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil
		case "getTelemetry":
			return readKey(params, r.Telemetry)
		case "getAttribute":
			return readKey(params, r.Attribute)
		default:
			return nil, rpc.ErrNotHandled
		}
	}
}

func readKey(params any, get func(string) (any, bool)) (any, error) {
	obj, _ := params.(map[string]any)
	key, _ := obj["key"].(string)
	if key == "" {
		return nil, fmt.Errorf(`params must be {"key": "<name>"}`)
	}
	v, ok := get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownKey, key)
	}
	return map[string]any{"key": key, "value": v}, nil
}
