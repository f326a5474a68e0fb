package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time for one handshake attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds how long Publish may wait for the outbound queue.
	defaultWriteTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when a non-positive keep-alive is requested.
	defaultKeepAlive = 60

	// defaultIOTimeout is how long a single-thread Loop waits for network events.
	defaultIOTimeout = time.Second

	// Reconnect backoff bounds.
	defaultRetryInitial = time.Second
	defaultRetryMax     = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxClientIDLength is the MQTT UTF-8 string limit.
	maxClientIDLength = 65535

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix prefixes generated client identifiers.
	clientIDPrefix = "thingsmqtt-"
)

// ClientOptions carries the identity and security settings applied by
// Configure.
type ClientOptions struct {
	// ClientID identifies the session to the broker. Empty generates one.
	ClientID string

	// Username and Password are optional. ThingsBoard uses the device
	// access token as Username with an empty Password.
	Username string
	Password string

	// TLS enables ssl:// when non-nil.
	TLS *TLSConfig
}

// TLSConfig names the PEM files used for a TLS session.
type TLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string

	// VerifyPeer checks the broker certificate chain.
	VerifyPeer bool

	// VerifyHostname checks the broker certificate name. It has no effect
	// when VerifyPeer is false.
	VerifyHostname bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ClientFactory creates the underlying paho client.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option configures a connection at construction.
type Option func(*settings)

type settings struct {
	logger       Logger
	newClient    ClientFactory
	ioTimeout    time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
}

func defaultSettings() settings {
	return settings{
		logger:       slog.New(slog.DiscardHandler),
		newClient:    pahomqtt.NewClient,
		ioTimeout:    defaultIOTimeout,
		retryInitial: defaultRetryInitial,
		retryMax:     defaultRetryMax,
	}
}

// WithLogger sets the logger used for transport warnings.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClientFactory replaces pahomqtt.NewClient. A nil factory makes
// Configure fail with ErrInitFailed.
func WithClientFactory(f ClientFactory) Option {
	return func(s *settings) { s.newClient = f }
}

// WithIOTimeout sets how long a single-thread Loop blocks waiting for
// network events. Ignored by the threaded strategy.
func WithIOTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.ioTimeout = d
		}
	}
}

// WithRetryBackoff sets the initial and maximum delay between connect attempts.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(s *settings) {
		if initial > 0 {
			s.retryInitial = initial
		}
		if maxDelay >= s.retryInitial {
			s.retryMax = maxDelay
		}
	}
}

// validateClientOptions checks the options Configure can reject up front.
func validateClientOptions(opts ClientOptions) error {
	if len(opts.ClientID) > maxClientIDLength || !utf8.ValidString(opts.ClientID) {
		return fmt.Errorf("%w: client id must be valid UTF-8 of at most %d bytes", ErrInvalidArgument, maxClientIDLength)
	}
	if opts.Password != "" && opts.Username == "" {
		return fmt.Errorf("%w: password set without username", ErrInvalidArgument)
	}
	if len(opts.Username) > maxClientIDLength || !utf8.ValidString(opts.Username) {
		return fmt.Errorf("%w: username must be valid UTF-8 of at most %d bytes", ErrInvalidArgument, maxClientIDLength)
	}
	return nil
}

// generateClientID returns a unique client identifier.
func generateClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// buildClientOptions creates the paho options shared by every connect
// attempt. Broker address, keep-alive and dialer are added at connect time.
//
// This configures:
//   - Client ID and credentials
//   - Clean session mode (subscriptions are reissued by the session)
//   - Auto-reconnect after an established session drops, 1s..30s backoff
//   - In-order message delivery
//   - TLS configuration (if enabled)
func buildClientOptions(opts ClientOptions, st settings) (*pahomqtt.ClientOptions, error) {
	po := pahomqtt.NewClientOptions()

	po.SetClientID(opts.ClientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	po.SetCleanSession(true)
	po.SetOrderMatters(true)

	// The first connection is retried by the session so refusal codes can
	// be reported; paho only takes over once a session has been established.
	po.SetConnectRetry(false)
	po.SetAutoReconnect(true)
	po.SetMaxReconnectInterval(st.retryMax)

	po.SetConnectTimeout(defaultConnectTimeout)
	po.SetWriteTimeout(defaultWriteTimeout)

	if opts.TLS != nil {
		tlsConfig, err := buildTLSConfig(*opts.TLS)
		if err != nil {
			return nil, err
		}
		po.SetTLSConfig(tlsConfig)
	}

	return po, nil
}

// buildTLSConfig loads the CA bundle and client key pair named by cfg.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSSetup, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in CA file %s", ErrTLSSetup, cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client key pair: %w", ErrTLSSetup, err)
		}
		tc.Certificates = []tls.Certificate{cert}
	case cfg.CertFile != "" || cfg.KeyFile != "":
		return nil, fmt.Errorf("%w: cert_file and key_file must be set together", ErrTLSSetup)
	}

	switch {
	case !cfg.VerifyPeer:
		tc.InsecureSkipVerify = true //nolint:gosec // explicitly configured
	case !cfg.VerifyHostname:
		// Verify the chain ourselves, skipping only the name check.
		tc.InsecureSkipVerify = true //nolint:gosec // chain verified below
		roots := tc.RootCAs
		tc.VerifyPeerCertificate = func(raw [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(raw, roots)
		}
	}

	return tc, nil
}

// verifyChain validates a peer certificate chain without a hostname.
func verifyChain(raw [][]byte, roots *x509.CertPool) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: broker presented no certificate", ErrTLSSetup)
	}
	certs := make([]*x509.Certificate, 0, len(raw))
	for _, der := range raw {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("%w: parsing broker certificate: %w", ErrTLSSetup, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}
