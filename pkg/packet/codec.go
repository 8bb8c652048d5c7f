package packet

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
)

func init() {
	gob.Register(Packet{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(gobEmpty(0))
}

// gobEmpty stands in for an empty, non-nil slice. Gob decodes empty and nil
// slices alike, so they travel as markers instead.
type gobEmpty uint8

const (
	emptyList gobEmpty = iota + 1
	emptyBytes
)

// toGob returns a copy of v with empty slices replaced by markers.
func toGob(v any) any {
	switch t := v.(type) {
	case []byte:
		if t != nil && len(t) == 0 {
			return emptyBytes
		}
		return t
	case []any:
		if t == nil {
			return t
		}
		if len(t) == 0 {
			return emptyList
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toGob(e)
		}
		return out
	case map[string]any:
		return toGobMap(t)
	case Packet:
		return Packet(toGobMap(map[string]any(t)))
	default:
		return v
	}
}

func toGobMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = toGob(e)
	}
	return out
}

// fromGob undoes toGob in place.
func fromGob(v any) any {
	switch t := v.(type) {
	case gobEmpty:
		switch t {
		case emptyList:
			return []any{}
		case emptyBytes:
			return []byte{}
		}
		return v
	case []any:
		for i, e := range t {
			t[i] = fromGob(e)
		}
		return t
	case map[string]any:
		fromGobMap(t)
		return t
	case Packet:
		fromGobMap(map[string]any(t))
		return t
	default:
		return v
	}
}

func fromGobMap(m map[string]any) {
	for k, e := range m {
		m[k] = fromGob(e)
	}
}

// Codec serializes packets into frame payloads and back.
type Codec interface {
	Name() string
	Marshal(p Packet) ([]byte, error)
	Unmarshal(data []byte) (Packet, error)
}

// CodecByName returns the codec registered under name ("gob" or "cbor").
// An empty name selects the default gob codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "gob":
		return Gob(), nil
	case "cbor":
		return CBOR()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type gobCodec struct{}

// Gob returns the default codec. Each payload is a self-contained gob
// stream so frames can be decoded independently of each other. Concrete
// value types survive the round trip, and so does the difference between
// empty and nil slices.
func Gob() Codec {
	return gobCodec{}
}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Marshal(p Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toGobMap(map[string]any(p))); err != nil {
		return nil, fmt.Errorf("gob.Encode(): %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte) (Packet, error) {
	var m map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("gob.Decode(): %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	fromGobMap(m)
	return Packet(m), nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a canonical CBOR codec. Nested maps decode as map[string]any
// and integers as int64, so callers comparing decoded values should use
// those types.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(p Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	data, err := c.enc.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("cbor.Marshal(): %w", err)
	}
	return data, nil
}

func (c cborCodec) Unmarshal(data []byte) (Packet, error) {
	var m map[string]any
	if err := c.dec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cbor.Unmarshal(): %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return Packet(m), nil
}
