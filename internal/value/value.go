package value

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Canonical values are the only shapes stored in the telemetry and
// attribute models:
//
//	nil, bool, int64, uint64 (only above math.MaxInt64), float64 (only
//	fractional, finite), string, map[string]any, []any
//
// Two canonical values are structurally equal exactly when reflect.DeepEqual
// reports them equal, which is what Equal relies on.

// maxExactInt is 2^63; float64 values at or beyond it cannot be int64.
const maxExactInt = 1 << 63

// FromNative converts an arbitrary Go value into its canonical form.
//
// Mapping:
//   - nil, nil pointers and nil interfaces become nil
//   - booleans and strings are kept; []byte becomes a string
//   - integers become int64, or uint64 when they do not fit
//   - floats with no fractional part become int64, others stay float64
//   - json.Number is parsed with the same integral/fractional rule
//   - maps with string keys become objects
//   - slices and arrays become arrays
//   - maps with integer keys exactly 1..n become arrays in key order,
//     other integer-keyed maps become objects keyed by the decimal key
//   - structs and json.Marshaler / encoding.TextMarshaler types go through
//     their JSON encoding
//
// NaN, infinities, channels, functions and complex numbers are rejected
// with ErrUnsupported.
func FromNative(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return fromUint(x), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		return fromNumber(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			c, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			c, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case json.Marshaler, encoding.TextMarshaler:
		return viaJSON(v)
	}

	return fromReflect(reflect.ValueOf(v))
}

// MustFromNative is FromNative for values known to be convertible.
// It panics on error and is intended for tests and literals.
func MustFromNative(v any) any {
	c, err := FromNative(v)
	if err != nil {
		panic(err)
	}
	return c
}

func fromUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func fromFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number %v", ErrUnsupported, f)
	}
	if f == math.Trunc(f) && f > -maxExactInt && f < maxExactInt {
		return int64(f), nil
	}
	return f, nil
}

func fromNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return fromUint(u), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed number %q", ErrUnsupported, string(n))
	}
	return fromFloat(f)
}

func fromReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return FromNative(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		return fromSequence(rv)
	case reflect.Array:
		return fromSequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		return fromMap(rv)
	case reflect.Struct:
		return viaJSON(rv.Interface())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
	}
}

func fromSequence(rv reflect.Value) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		c, err := FromNative(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func fromMap(rv reflect.Value) (any, error) {
	switch rv.Type().Key().Kind() {
	case reflect.String:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			c, err := FromNative(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromIndexedMap(rv, func(k reflect.Value) (int64, string) {
			return k.Int(), strconv.FormatInt(k.Int(), 10)
		})
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromIndexedMap(rv, func(k reflect.Value) (int64, string) {
			u := k.Uint()
			if u > math.MaxInt64 {
				return -1, strconv.FormatUint(u, 10)
			}
			return int64(u), strconv.FormatUint(u, 10)
		})
	default:
		return nil, fmt.Errorf("%w: map key type %s", ErrUnsupported, rv.Type().Key())
	}
}

// fromIndexedMap turns an integer-keyed map into an array when its keys are
// exactly 1..n, and into an object otherwise.
func fromIndexedMap(rv reflect.Value, key func(reflect.Value) (int64, string)) (any, error) {
	type entry struct {
		idx  int64
		name string
		val  reflect.Value
	}

	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		idx, name := key(iter.Key())
		entries = append(entries, entry{idx: idx, name: name, val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	sequential := len(entries) > 0
	for i, e := range entries {
		if e.idx != int64(i+1) {
			sequential = false
			break
		}
	}

	if sequential {
		out := make([]any, len(entries))
		for i, e := range entries {
			c, err := FromNative(e.val.Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i+1, err)
			}
			out[i] = c
		}
		return out, nil
	}

	out := make(map[string]any, len(entries))
	for _, e := range entries {
		c, err := FromNative(e.val.Interface())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.name, err)
		}
		out[e.name] = c
	}
	return out, nil
}

func viaJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return Decode(data)
}

// Decode parses a JSON document into its canonical form.
func Decode(data []byte) (any, error) {
	var raw any
	if err := unmarshalNumber(data, &raw); err != nil {
		return nil, err
	}
	return FromNative(raw)
}

// ToNative converts a canonical value back into the generic Go shape used by
// encoding/json: nil, bool, float64, string, map[string]any and []any.
// Every numeric subtype becomes float64.
func ToNative(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float64:
		return x
	case string:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = ToNative(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = ToNative(item)
		}
		return out
	default:
		return x
	}
}

// Equal reports whether two canonical values are structurally equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Clone returns a deep copy of a canonical value.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	default:
		return x
	}
}
