package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Device API topics.
const (
	// TopicPrefixDevice is the base for every topic of the connected device.
	TopicPrefixDevice = "v1/devices/me"

	// TopicTelemetry receives time-series envelopes.
	TopicTelemetry = TopicPrefixDevice + "/telemetry"

	// TopicAttributes receives client-side attribute updates.
	TopicAttributes = TopicPrefixDevice + "/attributes"

	// TopicPrefixRPCRequest is the base of server-side RPC requests.
	TopicPrefixRPCRequest = TopicPrefixDevice + "/rpc/request/"

	// TopicPrefixRPCResponse is the base of RPC responses.
	TopicPrefixRPCResponse = TopicPrefixDevice + "/rpc/response/"
)

// Topics provides builders for device API topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.RPCResponse("42")
//	// Returns: "v1/devices/me/rpc/response/42"
type Topics struct{}

// Telemetry returns the telemetry publish topic.
func (Topics) Telemetry() string {
	return TopicTelemetry
}

// Attributes returns the attribute publish topic.
func (Topics) Attributes() string {
	return TopicAttributes
}

// RPCRequest returns the topic of one RPC request.
//
// Example: v1/devices/me/rpc/request/42
func (Topics) RPCRequest(requestID string) string {
	return TopicPrefixRPCRequest + requestID
}

// RPCResponse returns the topic answering one RPC request.
//
// Example: v1/devices/me/rpc/response/42
func (Topics) RPCResponse(requestID string) string {
	return TopicPrefixRPCResponse + requestID
}

// AllRPCRequests returns the filter matching every RPC request.
func (Topics) AllRPCRequests() string {
	return TopicPrefixRPCRequest + "+"
}

// maxTopicLength is the MQTT UTF-8 string limit.
const maxTopicLength = 65535

// ValidateTopicName checks a topic used for publishing: non-empty, valid
// UTF-8, no wildcards and no NUL.
func ValidateTopicName(topic string) error {
	if err := validateTopicString(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter. "+" must occupy a whole
// level and "#" must be the whole last level.
func ValidateTopicFilter(filter string) error {
	if err := validateTopicString(filter); err != nil {
		return err
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "+" || level == "#" && i == len(levels)-1:
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: misplaced wildcard in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateTopicString(topic string) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	case len(topic) > maxTopicLength:
		return fmt.Errorf("%w: topic longer than %d bytes", ErrInvalidTopic, maxTopicLength)
	case !utf8.ValidString(topic):
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidTopic)
	case strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}
