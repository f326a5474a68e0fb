package modbus

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/goburrow/modbus"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/config"
)

// Bus is an open Modbus connection.
type Bus struct {
	client  modbus.Client
	handler io.Closer
}

type connectCloser interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Dial opens the TCP or RTU connection described by cfg.
func Dial(cfg config.ModbusConfig) (*Bus, error) {
	var h connectCloser
	switch cfg.Mode {
	case "tcp", "":
		th := modbus.NewTCPClientHandler(net.JoinHostPort(cfg.TCPHost, strconv.Itoa(cfg.TCPPort)))
		th.SlaveId = cfg.SlaveID
		if cfg.Timeout > 0 {
			th.Timeout = cfg.Timeout
		}
		h = th
	case "rtu":
		rh := modbus.NewRTUClientHandler(cfg.RTUDevice)
		rh.BaudRate = cfg.RTUBaud
		rh.DataBits = 8
		rh.Parity = "N"
		rh.StopBits = 1
		rh.SlaveId = cfg.SlaveID
		if cfg.Timeout > 0 {
			rh.Timeout = cfg.Timeout
		}
		h = rh
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect: %w", err)
	}

	return &Bus{client: modbus.NewClient(h), handler: h}, nil
}

// Client returns the protocol client for this bus.
func (b *Bus) Client() modbus.Client {
	return b.client
}

// Close releases the underlying connection.
func (b *Bus) Close() error {
	return b.handler.Close()
}
