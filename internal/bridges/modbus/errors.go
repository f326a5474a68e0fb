package modbus

import "errors"

// Domain-specific errors for the Modbus bridge.
var (
	// ErrInvalidRegister is returned for a register definition that cannot
	// be read.
	ErrInvalidRegister = errors.New("modbus: invalid register")

	// ErrShortResponse is returned when a device answers with fewer bytes
	// than the register type needs.
	ErrShortResponse = errors.New("modbus: short response")

	// ErrReadFailed wraps transport errors from a register read.
	ErrReadFailed = errors.New("modbus: read failed")

	// ErrUnknownMode is returned by Dial for modes other than tcp and rtu.
	ErrUnknownMode = errors.New("modbus: unknown mode")
)
