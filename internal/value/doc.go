// Package value normalises dynamic Go values into the small set of
// JSON-shaped types that the device models store and compare.
//
// Canonical values let change detection use plain structural equality:
// an int 42, a uint8 42 and a float64 42.0 all become int64(42), so the
// same reading written through different types is never reported as a
// change.
//
// FromNative accepts anything a script or bridge might hand over (maps,
// slices, structs, numbers of any width). ToNative goes the other way and
// renders every number as float64, mirroring how encoding/json decodes
// into interface{}.
package value
