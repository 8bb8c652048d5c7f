package packet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ParseJSON reads one JSON object as a packet. Integral numbers become
// int64 and all other numbers float64, so values survive both codecs.
func ParseJSON(data []byte) (Packet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("json.Decode(): %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("json.Decode(): trailing data after object")
	}
	if m == nil {
		return nil, fmt.Errorf("json.Decode(): packet must be an object, got null")
	}

	return Packet(convertNumbers(m).(map[string]any)), nil
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = convertNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = convertNumbers(e)
		}
		return t
	default:
		return v
	}
}

// FormatJSON renders p as a single line of JSON. Byte slices are base64
// encoded; NaN and infinities are rejected.
func FormatJSON(p Packet) ([]byte, error) {
	if err := checkFloats(map[string]any(p)); err != nil {
		return nil, err
	}
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("json.Marshal(): %w", err)
	}
	return b, nil
}

func checkFloats(v any) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%v: %w", t, ErrUnsupportedValue)
		}
	case float32:
		return checkFloats(float64(t))
	case map[string]any:
		for _, e := range t {
			if err := checkFloats(e); err != nil {
				return err
			}
		}
	case Packet:
		return checkFloats(map[string]any(t))
	case []any:
		for _, e := range t {
			if err := checkFloats(e); err != nil {
				return err
			}
		}
	}
	return nil
}
