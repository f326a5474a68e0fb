package mqtt

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// ConnectCode is an MQTT 3.1.1 CONNACK return code, extended with the
// transport-level codes used for dropped connections.
type ConnectCode byte

// Connect and disconnect codes.
const (
	CodeAccepted           ConnectCode = packets.Accepted
	CodeBadProtocolVersion ConnectCode = packets.ErrRefusedBadProtocolVersion
	CodeIDRejected         ConnectCode = packets.ErrRefusedIDRejected
	CodeServerUnavailable  ConnectCode = packets.ErrRefusedServerUnavailable
	CodeBadCredentials     ConnectCode = packets.ErrRefusedBadUsernameOrPassword
	CodeNotAuthorized      ConnectCode = packets.ErrRefusedNotAuthorised
	CodeConnectionLost     ConnectCode = packets.ErrNetworkError
	CodeProtocolViolation  ConnectCode = packets.ErrProtocolViolation
)

// Accepted reports whether the code is a successful CONNACK.
func (c ConnectCode) Accepted() bool {
	return c == CodeAccepted
}

func (c ConnectCode) String() string {
	if s, ok := packets.ConnackReturnCodes[byte(c)]; ok {
		return s
	}
	return fmt.Sprintf("Unknown code %d", byte(c))
}

// codeFromError maps a paho connect error onto a ConnectCode. The boolean
// is true when the broker refused the connection, false for transport
// failures.
func codeFromError(err error) (ConnectCode, bool) {
	for code, sentinel := range packets.ConnErrors {
		if sentinel == nil || code == packets.ErrNetworkError {
			continue
		}
		if errors.Is(err, sentinel) {
			return ConnectCode(code), true
		}
	}
	return CodeConnectionLost, false
}
