package packet

import (
	"errors"
	"reflect"
	"testing"
)

func TestGob_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Packet
	}{
		{"ping", Packet{"type": "ping", "seq": 1}},
		{"empty", Packet{}},
		{"scalars", Packet{"s": "x", "i": -42, "u": uint16(7), "f": 3.25, "b": true, "raw": []byte{0, 1, 0xff}}},
		{"nested map", Packet{"outer": map[string]any{"inner": map[string]any{"n": 1}}}},
		{"empty nested map", Packet{"m": map[string]any{}}},
		{"list", Packet{"items": []any{"a", 2, false, map[string]any{"k": "v"}}}},
		{"nested packet", Packet{"child": Packet{"type": "leaf"}}},
		{"empty list", Packet{"items": []any{}}},
		{"nested empty list", Packet{"m": map[string]any{"l": []any{}}}},
		{"empty list in list", Packet{"items": []any{[]any{}, "x"}}},
		{"empty list in packet", Packet{"child": Packet{"l": []any{}}}},
		{"empty bytes", Packet{"raw": []byte{}}},
		{"unicode", Packet{"name": "Søren", "emoji": "📡"}},
	}

	codec := Gob()
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data, err := codec.Marshal(tc.p)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := codec.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.p) {
				t.Errorf("round trip = %#v, want %#v", got, tc.p)
			}
		})
	}
}

func TestCBOR_RoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR() error = %v", err)
	}

	p := Packet{
		"type":  "pong",
		"seq":   int64(1),
		"neg":   int64(-5),
		"ratio": 0.5,
		"ok":    true,
		"tags":  []any{"a", int64(2)},
		"meta":  map[string]any{"depth": map[string]any{}},
	}

	data, err := codec.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := codec.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip = %#v, want %#v", got, p)
	}
}

func TestCodec_UnsupportedValue(t *testing.T) {
	t.Parallel()

	cbr, err := CBOR()
	if err != nil {
		t.Fatalf("CBOR() error = %v", err)
	}

	for _, codec := range []Codec{Gob(), cbr} {
		codec := codec
		t.Run(codec.Name(), func(t *testing.T) {
			t.Parallel()

			_, err := codec.Marshal(Packet{"ch": make(chan int)})
			if !errors.Is(err, ErrUnsupportedValue) {
				t.Errorf("Marshal() error = %v, want ErrUnsupportedValue", err)
			}
		})
	}
}

func TestCodec_Garbage(t *testing.T) {
	t.Parallel()

	cbr, _ := CBOR()
	for _, codec := range []Codec{Gob(), cbr} {
		if _, err := codec.Unmarshal([]byte{0xff, 0x00, 0x13, 0x37}); err == nil {
			t.Errorf("%s: Unmarshal(garbage) error = nil", codec.Name())
		}
	}
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "gob", false},
		{"gob", "gob", false},
		{"cbor", "cbor", false},
		{"xml", "", true},
	}

	for _, tc := range tests {
		c, err := CodecByName(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("CodecByName(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && c.Name() != tc.want {
			t.Errorf("CodecByName(%q).Name() = %q, want %q", tc.name, c.Name(), tc.want)
		}
	}
}

func TestPacket_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Packet
		wantErr bool
	}{
		{"flat", Packet{"a": 1, "b": "x"}, false},
		{"nil value", Packet{"a": nil}, false},
		{"func in list", Packet{"l": []any{1, func() {}}}, true},
		{"struct in map", Packet{"m": map[string]any{"s": struct{}{}}}, true},
		{"typed slice", Packet{"l": []string{"a"}}, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.p.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPacket_TypeAndString(t *testing.T) {
	t.Parallel()

	p := Packet{"type": "ping", "seq": 1}
	if p.Type() != "ping" {
		t.Errorf("Type() = %q, want ping", p.Type())
	}
	if got, want := p.String(), "{seq: 1, type: ping}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if (Packet{"type": 3}).Type() != "" {
		t.Error("Type() with non-string type should be empty")
	}
}

func TestGob_MarshalLeavesInputIntact(t *testing.T) {
	t.Parallel()

	p := Packet{"items": []any{[]any{}}, "m": map[string]any{"l": []any{}}}
	if _, err := Gob().Marshal(p); err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := Packet{"items": []any{[]any{}}, "m": map[string]any{"l": []any{}}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("Marshal() modified its input: %#v", p)
	}
}
