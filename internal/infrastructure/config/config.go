package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the thingsmqtt agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Broker     BrokerConfig     `yaml:"broker"`
	Auth       AuthConfig       `yaml:"auth"`
	TLS        TLSConfig        `yaml:"tls"`
	Connection ConnectionConfig `yaml:"connection"`
	Controller ControllerConfig `yaml:"controller"`
	RPC        RPCConfig        `yaml:"rpc"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Modbus     ModbusConfig     `yaml:"modbus"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig contains static attributes reported for this device.
type DeviceConfig struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
	KeepAlive   int    `yaml:"keepalive"`
	ClientID    string `yaml:"client_id"`
}

// AuthConfig contains broker credentials. For ThingsBoard the device
// access token is the username.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig contains TLS settings for the broker connection.
type TLSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CAFile         string `yaml:"ca_file"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	VerifyPeer     bool   `yaml:"verify_peer"`
	VerifyHostname bool   `yaml:"verify_hostname"`
}

// ConnectionConfig selects and tunes the connection strategy.
type ConnectionConfig struct {
	// Strategy is "single" or "threaded".
	Strategy string `yaml:"strategy"`

	// IOTimeout bounds how long a single-thread Loop waits for network
	// activity.
	IOTimeout time.Duration `yaml:"io_timeout"`

	// RetryInitial and RetryMax bound the reconnect backoff.
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`
}

// ControllerConfig contains the send cycle settings.
type ControllerConfig struct {
	// SendInterval is the period between Send calls in the main loop.
	SendInterval time.Duration `yaml:"send_interval"`

	// MaxPending bounds queued telemetry while disconnected. 0 means unbounded.
	MaxPending int `yaml:"max_pending"`

	// QoS for telemetry, attributes and RPC. Defaults to 1.
	QoS int `yaml:"qos"`
}

// RPCConfig contains server-side RPC settings.
type RPCConfig struct {
	Enabled        bool   `yaml:"enabled"`
	RequestPrefix  string `yaml:"request_prefix"`
	ResponsePrefix string `yaml:"response_prefix"`
}

// InfluxDBConfig contains settings for the local telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ModbusConfig contains the Modbus poller settings.
type ModbusConfig struct {
	Enabled      bool             `yaml:"enabled"`
	Mode         string           `yaml:"mode"`
	TCPHost      string           `yaml:"tcp_host"`
	TCPPort      int              `yaml:"tcp_port"`
	RTUDevice    string           `yaml:"rtu_device"`
	RTUBaud      int              `yaml:"rtu_baud"`
	SlaveID      byte             `yaml:"slave_id"`
	Timeout      time.Duration    `yaml:"timeout"`
	PollInterval time.Duration    `yaml:"poll_interval"`
	Registers    []RegisterConfig `yaml:"registers"`
}

// RegisterConfig maps one Modbus register block onto a telemetry or
// attribute key.
type RegisterConfig struct {
	Key       string  `yaml:"key"`
	Kind      string  `yaml:"kind"`
	Address   uint16  `yaml:"address"`
	Type      string  `yaml:"type"`
	Scale     float64 `yaml:"scale"`
	Attribute bool    `yaml:"attribute"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: THINGSMQTT_SECTION_KEY
// For example: THINGSMQTT_BROKER_HOST, THINGSMQTT_AUTH_USERNAME
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file is given.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:      "localhost",
			Port:      1883,
			KeepAlive: 60,
		},
		TLS: TLSConfig{
			VerifyPeer:     true,
			VerifyHostname: true,
		},
		Connection: ConnectionConfig{
			Strategy:     "threaded",
			IOTimeout:    time.Second,
			RetryInitial: time.Second,
			RetryMax:     30 * time.Second,
		},
		Controller: ControllerConfig{
			SendInterval: 5 * time.Second,
			MaxPending:   10000,
			QoS:          1,
		},
		RPC: RPCConfig{
			RequestPrefix:  "v1/devices/me/rpc/request/",
			ResponsePrefix: "v1/devices/me/rpc/response/",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 1,
		},
		Modbus: ModbusConfig{
			Mode:         "tcp",
			TCPPort:      502,
			RTUBaud:      9600,
			SlaveID:      1,
			Timeout:      time.Second,
			PollInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: THINGSMQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("THINGSMQTT_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("THINGSMQTT_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("THINGSMQTT_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}

	// Auth
	if v := os.Getenv("THINGSMQTT_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("THINGSMQTT_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Connection
	if v := os.Getenv("THINGSMQTT_CONNECTION_STRATEGY"); v != "" {
		cfg.Connection.Strategy = v
	}

	// InfluxDB
	if v := os.Getenv("THINGSMQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("THINGSMQTT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.BindAddress != "" && net.ParseIP(c.Broker.BindAddress) == nil {
		errs = append(errs, "broker.bind_address must be an IP address")
	}
	if c.Auth.Password != "" && c.Auth.Username == "" {
		errs = append(errs, "auth.password requires auth.username")
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, "tls.cert_file and tls.key_file must be set together")
	}

	switch c.Connection.Strategy {
	case "single", "threaded":
	default:
		errs = append(errs, `connection.strategy must be "single" or "threaded"`)
	}
	if c.Connection.IOTimeout <= 0 {
		errs = append(errs, "connection.io_timeout must be positive")
	}
	if c.Connection.RetryInitial <= 0 || c.Connection.RetryMax < c.Connection.RetryInitial {
		errs = append(errs, "connection.retry_initial must be positive and not exceed retry_max")
	}

	if c.Controller.SendInterval <= 0 {
		errs = append(errs, "controller.send_interval must be positive")
	}
	if c.Controller.MaxPending < 0 {
		errs = append(errs, "controller.max_pending cannot be negative")
	}
	if c.Controller.QoS < 0 || c.Controller.QoS > 2 {
		errs = append(errs, "controller.qos must be 0, 1, or 2")
	}

	if c.RPC.Enabled && (c.RPC.RequestPrefix == "" || c.RPC.ResponsePrefix == "") {
		errs = append(errs, "rpc.request_prefix and rpc.response_prefix are required when rpc is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Modbus.Enabled {
		errs = append(errs, c.Modbus.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (m *ModbusConfig) validate() []string {
	var errs []string

	switch m.Mode {
	case "tcp":
		if m.TCPHost == "" {
			errs = append(errs, "modbus.tcp_host is required in tcp mode")
		}
	case "rtu":
		if m.RTUDevice == "" {
			errs = append(errs, "modbus.rtu_device is required in rtu mode")
		}
	default:
		errs = append(errs, `modbus.mode must be "tcp" or "rtu"`)
	}
	if m.PollInterval <= 0 {
		errs = append(errs, "modbus.poll_interval must be positive")
	}

	seen := make(map[string]bool, len(m.Registers))
	for i, r := range m.Registers {
		if r.Key == "" {
			errs = append(errs, fmt.Sprintf("modbus.registers[%d].key is required", i))
			continue
		}
		if seen[r.Key] {
			errs = append(errs, fmt.Sprintf("modbus.registers[%d].key %q is duplicated", i, r.Key))
		}
		seen[r.Key] = true
	}
	return errs
}

// IsSingleThread reports whether the single-thread strategy is selected.
func (c *Config) IsSingleThread() bool {
	return c.Connection.Strategy == "single"
}

// GetFlushInterval returns the flush interval as a Duration.
func (c InfluxDBConfig) GetFlushInterval() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}
