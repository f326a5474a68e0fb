package modbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// defaultPollInterval is used when Start is given a non-positive interval.
const defaultPollInterval = 10 * time.Second

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Reading is one decoded register value.
type Reading struct {
	Key       string
	Value     any
	Attribute bool
}

// Sink receives readings. The telemetry controller satisfies it.
type Sink interface {
	PublishTelemetry(key string, v any) error
	SetAttribute(key string, v any) error
}

// Poller reads a fixed register set from one Modbus device.
//
// Reads run on the poller's own goroutine; batches are handed to the
// caller over a channel so the sink is only touched from the caller's
// goroutine.
type Poller struct {
	client    modbus.Client
	registers []Register
	logger    Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a poller for registers.
//
// Parameters:
//   - client: goburrow modbus client, usually Bus.Client()
//   - registers: Copied and validated; the first invalid one fails the call
//   - logger: Receives per-register read failures; nil discards them
//
// Returns:
//   - *Poller: Idle until Start
//   - error: ErrInvalidRegister wrapping the offending register
func NewPoller(client modbus.Client, registers []Register, logger Logger) (*Poller, error) {
	regs := make([]Register, len(registers))
	copy(regs, registers)
	for i := range regs {
		if err := regs[i].Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{client: client, registers: regs, logger: logger}, nil
}

// ReadAll reads every register once. Registers that fail are skipped; their
// errors are joined into the returned error.
func (p *Poller) ReadAll() ([]Reading, error) {
	readings := make([]Reading, 0, len(p.registers))
	var errs []error

	for _, r := range p.registers {
		v, err := p.read(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, Reading{Key: r.Key, Value: v, Attribute: r.Attribute})
	}

	return readings, errors.Join(errs...)
}

func (p *Poller) read(r Register) (any, error) {
	var (
		data []byte
		err  error
	)
	switch r.Kind {
	case KindCoil:
		data, err = p.client.ReadCoils(r.Address, 1)
	case KindDiscrete:
		data, err = p.client.ReadDiscreteInputs(r.Address, 1)
	case KindHolding:
		data, err = p.client.ReadHoldingRegisters(r.Address, r.Type.words())
	case KindInput:
		data, err = p.client.ReadInputRegisters(r.Address, r.Type.words())
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRegister, r.Key, r.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %d: %w", ErrReadFailed, r.Key, r.Address, err)
	}
	return r.decode(data)
}

// Start polls every interval until ctx is cancelled or Stop is called,
// sending each non-empty batch to out. A batch is dropped if out is not
// ready before the next tick.
func (p *Poller) Start(ctx context.Context, interval time.Duration, out chan<- []Reading) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			p.pollOnce(ctx, interval, out)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	p.logger.Info("modbus poller started", "registers", len(p.registers), "interval", interval)
}

func (p *Poller) pollOnce(ctx context.Context, interval time.Duration, out chan<- []Reading) {
	readings, err := p.ReadAll()
	if err != nil {
		p.logger.Warn("modbus poll incomplete", "error", err)
	}
	if len(readings) == 0 {
		return
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case out <- readings:
	case <-ctx.Done():
	case <-timer.C:
		p.logger.Warn("modbus readings dropped, consumer not ready", "count", len(readings))
	}
}

// Stop halts polling and waits for the goroutine to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Wait()
		p.logger.Info("modbus poller stopped")
	})
}

// Apply hands readings to sink. Every reading is attempted; errors are
// joined.
func Apply(sink Sink, readings []Reading) error {
	var errs []error
	for _, r := range readings {
		var err error
		if r.Attribute {
			err = sink.SetAttribute(r.Key, r.Value)
		} else {
			err = sink.PublishTelemetry(r.Key, r.Value)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
