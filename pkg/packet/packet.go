// Package packet defines the structured messages exchanged over a connection
// and how they are turned into self-delimiting frames.
//
// A Packet is a string-keyed map whose values may be strings, booleans,
// numbers, byte slices, lists ([]any) or nested maps. Packets are serialized
// by a Codec (gob by default, CBOR optionally) and the resulting payload is
// prefixed with its length:
//
//	+----------------+---------------------+
//	| length (u32be) | payload (length B)  |
//	+----------------+---------------------+
//
// Frame boundaries can be recovered from a byte stream arriving in chunks of
// any size, see NextFrame.
package packet

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedValue is returned when a packet holds a value that cannot be
// put on the wire.
var ErrUnsupportedValue = errors.New("unsupported packet value")

// Packet is the application-level unit of communication.
type Packet map[string]any

// Type returns the "type" entry if it is a string. Most applications use it
// to dispatch packets.
func (p Packet) Type() string {
	s, _ := p["type"].(string)
	return s
}

// Validate checks that every value in the packet can be encoded.
// The returned error names the offending key path.
func (p Packet) Validate() error {
	return validateMap(map[string]any(p), "")
}

// String renders the packet with sorted keys, for logs.
func (p Packet) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, p[k])
	}
	b.WriteByte('}')
	return b.String()
}

func validateMap(m map[string]any, path string) error {
	for k, v := range m {
		if err := validateValue(v, path+"/"+k); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(v any, path string) error {
	switch t := v.(type) {
	case nil, string, bool, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		for i, e := range t {
			if err := validateValue(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return validateMap(t, path)
	case Packet:
		return validateMap(map[string]any(t), path)
	default:
		return fmt.Errorf("%s: %T: %w", path, v, ErrUnsupportedValue)
	}
}
