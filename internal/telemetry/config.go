package telemetry

import (
	"fmt"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
)

// defaultKeepAlive replaces non-positive keep-alive values (seconds).
const defaultKeepAlive = 60

// Config holds the broker connection parameters. It is consumed once by
// Controller.Connect.
type Config struct {
	Host        string
	Port        int
	BindAddress string
	KeepAlive   int

	ClientID string
	Username string
	Password string

	// TLS enables an ssl:// connection when non-nil.
	TLS *mqtt.TLSConfig
}

// Validate checks the parameters that must be rejected before any network
// activity.
func (c Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// normalised returns a copy with defaults applied.
func (c Config) normalised() Config {
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	return c
}

func (c Config) clientOptions() mqtt.ClientOptions {
	return mqtt.ClientOptions{
		ClientID: c.ClientID,
		Username: c.Username,
		Password: c.Password,
		TLS:      c.TLS,
	}
}
