package modbus

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nerrad567/thingsmqtt/internal/infrastructure/config"
)

// Kind selects the Modbus table a register is read from.
type Kind string

// Register tables.
const (
	KindCoil     Kind = "coil"     // FC1
	KindDiscrete Kind = "discrete" // FC2
	KindHolding  Kind = "holding"  // FC3
	KindInput    Kind = "input"    // FC4
)

func (k Kind) isBit() bool {
	return k == KindCoil || k == KindDiscrete
}

// Type is the encoding of the value stored at a register address.
type Type string

// Value encodings. Multi-word types are big-endian, high word first.
const (
	TypeBool    Type = "bool"
	TypeUint16  Type = "uint16"
	TypeInt16   Type = "int16"
	TypeUint32  Type = "uint32"
	TypeInt32   Type = "int32"
	TypeFloat32 Type = "float32"
)

// words returns the number of 16-bit registers the type occupies.
func (t Type) words() uint16 {
	switch t {
	case TypeUint32, TypeInt32, TypeFloat32:
		return 2
	default:
		return 1
	}
}

// Register maps one device value onto a telemetry or attribute key.
type Register struct {
	Key     string
	Kind    Kind
	Address uint16
	Type    Type

	// Scale multiplies numeric readings when non-zero; the result is a float.
	Scale float64

	// Attribute routes the reading to SetAttribute instead of
	// PublishTelemetry.
	Attribute bool
}

// Validate checks the kind/type combination and fills the default type.
func (r *Register) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidRegister)
	}

	switch r.Kind {
	case KindCoil, KindDiscrete:
		if r.Type == "" {
			r.Type = TypeBool
		}
		if r.Type != TypeBool {
			return fmt.Errorf("%w: %s: %s registers only hold bool", ErrInvalidRegister, r.Key, r.Kind)
		}
	case KindHolding, KindInput:
		switch r.Type {
		case "":
			r.Type = TypeUint16
		case TypeUint16, TypeInt16, TypeUint32, TypeInt32, TypeFloat32:
		default:
			return fmt.Errorf("%w: %s: unsupported type %q", ErrInvalidRegister, r.Key, r.Type)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRegister, r.Key, r.Kind)
	}

	if math.IsNaN(r.Scale) || math.IsInf(r.Scale, 0) {
		return fmt.Errorf("%w: %s: scale must be finite", ErrInvalidRegister, r.Key)
	}
	return nil
}

// RegistersFromConfig converts and validates configured registers.
func RegistersFromConfig(cfgs []config.RegisterConfig) ([]Register, error) {
	regs := make([]Register, 0, len(cfgs))
	for _, c := range cfgs {
		r := Register{
			Key:       c.Key,
			Kind:      Kind(c.Kind),
			Address:   c.Address,
			Type:      Type(c.Type),
			Scale:     c.Scale,
			Attribute: c.Attribute,
		}
		if r.Kind == "" {
			r.Kind = KindHolding
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// decode converts the raw response for r into a canonical value.
func (r Register) decode(data []byte) (any, error) {
	if r.Kind.isBit() {
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: %s: empty bit response", ErrShortResponse, r.Key)
		}
		return data[0]&0x01 != 0, nil
	}

	need := int(r.Type.words()) * 2
	if len(data) < need {
		return nil, fmt.Errorf("%w: %s: got %d bytes, want %d", ErrShortResponse, r.Key, len(data), need)
	}

	switch r.Type {
	case TypeUint16:
		return r.scaleInt(int64(binary.BigEndian.Uint16(data))), nil
	case TypeInt16:
		return r.scaleInt(int64(int16(binary.BigEndian.Uint16(data)))), nil
	case TypeUint32:
		return r.scaleInt(int64(binary.BigEndian.Uint32(data))), nil
	case TypeInt32:
		return r.scaleInt(int64(int32(binary.BigEndian.Uint32(data)))), nil
	case TypeFloat32:
		f := float64(math.Float32frombits(binary.BigEndian.Uint32(data)))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s: non-finite float", ErrInvalidRegister, r.Key)
		}
		if r.Scale != 0 {
			f *= r.Scale
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s: unsupported type %q", ErrInvalidRegister, r.Key, r.Type)
}

func (r Register) scaleInt(v int64) any {
	if r.Scale == 0 {
		return v
	}
	return float64(v) * r.Scale
}
