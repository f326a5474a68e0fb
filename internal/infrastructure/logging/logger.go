package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "thingsmqtt"

// Logger wraps slog.Logger with agent-specific functionality.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//
// Parameters:
//   - cfg: Logging configuration (level, format, output)
//   - version: Build version attached to every record
//
// Returns:
//   - *Logger: Ready to use; output "stderr" selects stderr, anything else stdout
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newWithWriter(output, cfg, version)
}

func newWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a default logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// pahoLogger adapts a slog level to the paho client's internal logger
// interface.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (p pahoLogger) Println(v ...interface{}) {
	p.logger.Log(context.Background(), p.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.logger.Log(context.Background(), p.level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// InstallPahoLoggers routes the paho client's internal diagnostics through
// l. Paho's DEBUG output is only wired when l has debug enabled.
func InstallPahoLoggers(l *Logger) {
	pl := l.With("component", "paho").Logger
	pahomqtt.CRITICAL = pahoLogger{logger: pl, level: slog.LevelError}
	pahomqtt.ERROR = pahoLogger{logger: pl, level: slog.LevelError}
	pahomqtt.WARN = pahoLogger{logger: pl, level: slog.LevelWarn}
	if l.Enabled(context.Background(), slog.LevelDebug) {
		pahomqtt.DEBUG = pahoLogger{logger: pl, level: slog.LevelDebug}
	}
}
