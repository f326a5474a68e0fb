// Package logging provides structured logging for the thingsmqtt agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Paho client diagnostics routed through the same handler
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logging.InstallPahoLoggers(logger)
//	logger.Info("connecting", "host", cfg.Broker.Host)
//
// # Security
//
// Never log device access tokens or passwords.
package logging
