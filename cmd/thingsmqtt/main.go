// thingsmqtt - ThingsBoard-style MQTT device agent
//
// The agent keeps a device's telemetry and attributes, pushes changes to
// the broker on a fixed cycle and keeps working through broker outages:
// telemetry is queued and replayed, attributes are resent on reconnect.
// Optional sources and sinks are a Modbus poller and a local InfluxDB
// mirror.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/thingsmqtt/internal/bridges/modbus"
	"github.com/nerrad567/thingsmqtt/internal/infrastructure/config"
	"github.com/nerrad567/thingsmqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/thingsmqtt/internal/infrastructure/logging"
	"github.com/nerrad567/thingsmqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/thingsmqtt/internal/rpc"
	"github.com/nerrad567/thingsmqtt/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when THINGSMQTT_CONFIG is unset.
	defaultConfigPath = "configs/thingsmqtt.yaml"

	// threadedLoopInterval paces Loop for the threaded strategy, whose
	// Loop never blocks.
	threadedLoopInterval = 50 * time.Millisecond
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting thingsmqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	logging.InstallPahoLoggers(log)
	log.Info("configuration loaded", "path", configPath, "strategy", cfg.Connection.Strategy)

	device := deviceName(cfg)

	conn, err := mqtt.New(cfg.Connection.Strategy,
		mqtt.WithLogger(log.With("component", "mqtt")),
		mqtt.WithIOTimeout(cfg.Connection.IOTimeout),
		mqtt.WithRetryBackoff(cfg.Connection.RetryInitial, cfg.Connection.RetryMax),
	)
	if err != nil {
		return fmt.Errorf("creating connection: %w", err)
	}

	opts := []telemetry.Option{
		telemetry.WithLogger(log.With("component", "controller")),
		telemetry.WithMaxPending(cfg.Controller.MaxPending),
		telemetry.WithQoS(mqtt.QoS(cfg.Controller.QoS)),
	}
	if cfg.RPC.Enabled {
		opts = append(opts, telemetry.WithRPC(rpc.Topics{
			RequestPrefix:  cfg.RPC.RequestPrefix,
			ResponsePrefix: cfg.RPC.ResponsePrefix,
		}))
	}

	// InfluxDB is optional: the agent runs without its local mirror.
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, device)
		if influxErr != nil {
			log.Warn("influxdb unavailable, local mirror disabled", "error", influxErr)
		} else {
			defer func() {
				log.Info("closing influxdb")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing influxdb", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("influxdb write failed", "error", err)
			})
			opts = append(opts, telemetry.WithRecorder(influxClient))
			log.Info("influxdb mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	ctrl := telemetry.New(conn, opts...)
	defer func() {
		log.Info("closing broker connection")
		if closeErr := ctrl.Close(); closeErr != nil {
			log.Error("error closing connection", "error", closeErr)
		}
	}()

	ctrl.AddRPCHandler(builtinHandler(ctrl))

	if err := seedAttributes(ctrl, cfg, device); err != nil {
		return fmt.Errorf("setting device attributes: %w", err)
	}

	if err := ctrl.Connect(brokerConfig(cfg)); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}

	var readings <-chan []modbus.Reading
	if cfg.Modbus.Enabled {
		poller, bus, ch, pollErr := startModbus(ctx, cfg, log)
		if pollErr != nil {
			return fmt.Errorf("starting modbus: %w", pollErr)
		}
		defer func() {
			poller.Stop()
			if closeErr := bus.Close(); closeErr != nil {
				log.Error("error closing modbus", "error", closeErr)
			}
		}()
		readings = ch
	}

	loopInterval := time.Duration(0)
	if !cfg.IsSingleThread() {
		loopInterval = threadedLoopInterval
	}

	log.Info("thingsmqtt running", "device", device)
	runLoop(ctx, ctrl, loopConfig{
		send:     cfg.Controller.SendInterval,
		loop:     loopInterval,
		readings: readings,
		log:      log,
	})

	log.Info("shutting down")
	return nil
}

// getConfigPath returns the config file path from the environment or the default.
func getConfigPath() string {
	if path := os.Getenv("THINGSMQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// deviceName returns the configured device name, falling back to the host name.
func deviceName(cfg *config.Config) string {
	if cfg.Device.Name != "" {
		return cfg.Device.Name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "thingsmqtt"
}

// brokerConfig maps the file configuration onto the controller's Config.
func brokerConfig(cfg *config.Config) telemetry.Config {
	bc := telemetry.Config{
		Host:        cfg.Broker.Host,
		Port:        cfg.Broker.Port,
		BindAddress: cfg.Broker.BindAddress,
		KeepAlive:   cfg.Broker.KeepAlive,
		ClientID:    cfg.Broker.ClientID,
		Username:    cfg.Auth.Username,
		Password:    cfg.Auth.Password,
	}
	if cfg.TLS.Enabled {
		bc.TLS = &mqtt.TLSConfig{
			CAFile:         cfg.TLS.CAFile,
			CertFile:       cfg.TLS.CertFile,
			KeyFile:        cfg.TLS.KeyFile,
			VerifyPeer:     cfg.TLS.VerifyPeer,
			VerifyHostname: cfg.TLS.VerifyHostname,
		}
	}
	return bc
}

// seedAttributes records the static attributes sent on every connect.
func seedAttributes(sink modbus.Sink, cfg *config.Config, device string) error {
	if err := sink.SetAttribute("agent_version", version); err != nil {
		return err
	}
	if err := sink.SetAttribute("device_name", device); err != nil {
		return err
	}
	for k, v := range cfg.Device.Attributes {
		if err := sink.SetAttribute(k, v); err != nil {
			return err
		}
	}
	return nil
}

func startModbus(ctx context.Context, cfg *config.Config, log *logging.Logger) (*modbus.Poller, *modbus.Bus, <-chan []modbus.Reading, error) {
	regs, err := modbus.RegistersFromConfig(cfg.Modbus.Registers)
	if err != nil {
		return nil, nil, nil, err
	}

	bus, err := modbus.Dial(cfg.Modbus)
	if err != nil {
		return nil, nil, nil, err
	}

	poller, err := modbus.NewPoller(bus.Client(), regs, log.With("component", "modbus"))
	if err != nil {
		_ = bus.Close()
		return nil, nil, nil, err
	}

	ch := make(chan []modbus.Reading, 1)
	poller.Start(ctx, cfg.Modbus.PollInterval, ch)
	return poller, bus, ch, nil
}

// agent is the part of the controller the main loop drives.
type agent interface {
	modbus.Sink
	Loop() error
	Send() (bool, error)
}

type loopConfig struct {
	// send is the period between Send calls.
	send time.Duration

	// loop paces Loop calls. Zero calls Loop back to back, for a Loop
	// that blocks on its own.
	loop time.Duration

	readings <-chan []modbus.Reading
	log      *logging.Logger
}

// runLoop drives the controller until ctx is cancelled. Loop, Send and
// reading application all happen on this goroutine.
func runLoop(ctx context.Context, a agent, lc loopConfig) {
	sendTicker := time.NewTicker(lc.send)
	defer sendTicker.Stop()

	var pace <-chan time.Time
	if lc.loop > 0 {
		paceTicker := time.NewTicker(lc.loop)
		defer paceTicker.Stop()
		pace = paceTicker.C
	}

	apply := func(batch []modbus.Reading) {
		if err := modbus.Apply(a, batch); err != nil {
			lc.log.Warn("modbus readings rejected", "error", err)
		}
	}
	send := func() {
		if _, err := a.Send(); err != nil {
			lc.log.Error("send failed", "error", err)
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := a.Loop(); err != nil {
			if errors.Is(err, mqtt.ErrClosed) {
				lc.log.Error("connection loop stopped", "error", err)
				return
			}
			lc.log.Warn("connection loop error", "error", err)
		}

		if pace == nil {
			select {
			case <-ctx.Done():
				return
			case batch := <-lc.readings:
				apply(batch)
			case <-sendTicker.C:
				send()
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case batch := <-lc.readings:
			apply(batch)
		case <-sendTicker.C:
			send()
		case <-pace:
		}
	}
}
