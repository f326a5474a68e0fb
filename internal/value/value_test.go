package value

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromNativeScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "on", "on"},
		{"bytes", []byte("raw"), "raw"},
		{"int", 42, int64(42)},
		{"int8", int8(-3), int64(-3)},
		{"uint16", uint16(7), int64(7)},
		{"uint64 small", uint64(9), int64(9)},
		{"uint64 large", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"integral float", 21.0, int64(21)},
		{"fractional float", 21.5, 21.5},
		{"float32", float32(2), int64(2)},
		{"json number int", json.Number("12"), int64(12)},
		{"json number float", json.Number("1.25"), 1.25},
		{"json number big", json.Number("18446744073709551615"), uint64(math.MaxUint64)},
		{"nil pointer", (*int)(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromNative(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromNativePointer(t *testing.T) {
	n := 5
	got, err := FromNative(&n)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestFromNativeRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromNative(f)
		assert.True(t, errors.Is(err, ErrUnsupported), "FromNative(%v) error = %v", f, err)
	}
}

func TestFromNativeRejectsUnsupportedKinds(t *testing.T) {
	_, err := FromNative(make(chan int))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromNative(func() {})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = FromNative(map[float64]int{1.5: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFromNativeNestedErrorPath(t *testing.T) {
	_, err := FromNative(map[string]any{"a": []any{1, math.NaN()}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "a: [1]")
}

func TestFromNativeContainers(t *testing.T) {
	got, err := FromNative(map[string]any{
		"temp":  21.0,
		"tags":  []string{"a", "b"},
		"inner": map[string]int{"x": 1},
	})
	require.NoError(t, err)

	want := map[string]any{
		"temp":  int64(21),
		"tags":  []any{"a", "b"},
		"inner": map[string]any{"x": int64(1)},
	}
	assert.Equal(t, want, got)
}

func TestFromNativeIndexedMaps(t *testing.T) {
	t.Run("contiguous from one becomes array", func(t *testing.T) {
		got, err := FromNative(map[int]string{2: "b", 1: "a", 3: "c"})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "c"}, got)
	})

	t.Run("gap becomes object", func(t *testing.T) {
		got, err := FromNative(map[int]string{1: "a", 3: "c"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"1": "a", "3": "c"}, got)
	})

	t.Run("zero based becomes object", func(t *testing.T) {
		got, err := FromNative(map[uint8]bool{0: true, 1: false})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"0": true, "1": false}, got)
	})

	t.Run("empty becomes object", func(t *testing.T) {
		got, err := FromNative(map[int]int{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, got)
	})
}

func TestFromNativeStruct(t *testing.T) {
	type reading struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	got, err := FromNative(reading{Name: "temp", Value: 20})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "temp", "value": int64(20)}, got)
}

func TestFromNativeMarshaler(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := FromNative(ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z", got)
}

func TestNumericTypesCompareEqual(t *testing.T) {
	a := MustFromNative(42)
	b := MustFromNative(uint8(42))
	c := MustFromNative(42.0)
	d := MustFromNative(json.Number("42"))

	assert.True(t, Equal(a, b))
	assert.True(t, Equal(b, c))
	assert.True(t, Equal(c, d))
	assert.False(t, Equal(a, MustFromNative(42.5)))
}

func TestEqualStructural(t *testing.T) {
	a := MustFromNative(map[string]any{"x": []int{1, 2}, "y": nil})
	b := MustFromNative(map[string]any{"y": nil, "x": []float64{1, 2}})
	assert.True(t, Equal(a, b))

	c := MustFromNative(map[string]any{"x": []int{2, 1}, "y": nil})
	assert.False(t, Equal(a, c))

	assert.False(t, Equal(MustFromNative("1"), MustFromNative(1)))
	assert.False(t, Equal(nil, MustFromNative(false)))
}

func TestToNative(t *testing.T) {
	in := MustFromNative(map[string]any{
		"i":    7,
		"u":    uint64(math.MaxUint64),
		"f":    0.5,
		"s":    "x",
		"b":    false,
		"n":    nil,
		"list": []any{1, "two"},
	})

	got := ToNative(in)
	want := map[string]any{
		"i":    float64(7),
		"u":    float64(math.MaxUint64),
		"f":    0.5,
		"s":    "x",
		"b":    false,
		"n":    nil,
		"list": []any{float64(1), "two"},
	}
	assert.Equal(t, want, got)
}

func TestToNativeRoundTripMatchesJSON(t *testing.T) {
	src := map[string]any{"a": 1, "b": []any{true, 2.5}}

	data, err := json.Marshal(src)
	require.NoError(t, err)
	var viaJSON any
	require.NoError(t, json.Unmarshal(data, &viaJSON))

	assert.Equal(t, viaJSON, ToNative(MustFromNative(src)))
}

func TestClone(t *testing.T) {
	orig := MustFromNative(map[string]any{"list": []any{1, 2}}).(map[string]any)
	cp := Clone(orig).(map[string]any)

	cp["list"].([]any)[0] = int64(99)
	cp["extra"] = true

	assert.Equal(t, int64(1), orig["list"].([]any)[0])
	_, ok := orig["extra"]
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	got, err := Decode([]byte(`{"a":1,"b":1.5,"c":[true,null],"big":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a":   int64(1),
		"b":   1.5,
		"c":   []any{true, nil},
		"big": int64(9007199254740993),
	}, got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrMalformedJSON)

	_, err = Decode([]byte(`{} {}`))
	assert.ErrorIs(t, err, ErrMalformedJSON)

	_, err = DecodeObject([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedJSON)

	obj, err := DecodeObject([]byte(` {"k":"v"} `))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, obj)
}
