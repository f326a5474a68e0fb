package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// unmarshalNumber decodes a single JSON document keeping numbers as
// json.Number so integers above 2^53 survive.
func unmarshalNumber(data []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrMalformedJSON)
	}
	return nil
}

// DecodeObject parses a JSON document that must be an object.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is not an object", ErrMalformedJSON)
	}
	return obj, nil
}
