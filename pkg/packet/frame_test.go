package packet

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestAppendFrame_NextFrame(t *testing.T) {
	t.Parallel()

	buf, err := AppendFrame(nil, []byte("hello"), 0)
	if err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if want := []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o'}; !bytes.Equal(buf, want) {
		t.Fatalf("AppendFrame() = %v, want %v", buf, want)
	}

	for i := 0; i < len(buf); i++ {
		payload, n, err := NextFrame(buf[:i], 0)
		if err != nil || n != 0 || payload != nil {
			t.Fatalf("NextFrame(%d bytes) = (%q, %d, %v), want incomplete", i, payload, n, err)
		}
	}

	payload, n, err := NextFrame(buf, 0)
	if err != nil {
		t.Fatalf("NextFrame() error = %v", err)
	}
	if n != len(buf) || string(payload) != "hello" {
		t.Errorf("NextFrame() = (%q, %d), want (hello, %d)", payload, n, len(buf))
	}
}

func TestFrame_Limits(t *testing.T) {
	t.Parallel()

	if _, err := AppendFrame(nil, nil, 0); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("AppendFrame(empty) error = %v, want ErrEmptyFrame", err)
	}
	if _, err := AppendFrame(nil, make([]byte, 11), 10); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("AppendFrame(11 > 10) error = %v, want ErrFrameTooLarge", err)
	}
	if _, _, err := NextFrame([]byte{0, 0, 0, 0}, 0); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("NextFrame(zero length) error = %v, want ErrEmptyFrame", err)
	}
	if _, _, err := NextFrame([]byte{0xff, 0xff, 0xff, 0xff}, 1024); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("NextFrame(huge) error = %v, want ErrFrameTooLarge", err)
	}
}

func encodeAll(t *testing.T, c Codec, packets []Packet) []byte {
	t.Helper()

	var wire []byte
	for _, p := range packets {
		frame, err := Encode(c, p, DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", p, err)
		}
		wire = append(wire, frame...)
	}
	return wire
}

func decodeChunks(t *testing.T, d *Decoder, wire []byte, split func(rest int) int) []Packet {
	t.Helper()

	var got []Packet
	for len(wire) > 0 {
		n := split(len(wire))
		d.Write(wire[:n])
		wire = wire[n:]
		for {
			p, ok, err := d.Next()
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if !ok {
				break
			}
			got = append(got, p)
		}
	}
	return got
}

func TestDecoder_ArbitraryChunking(t *testing.T) {
	t.Parallel()

	packets := []Packet{
		{"type": "ping", "seq": 1},
		{"type": "data", "payload": []byte("abcdefghijklmnopqrstuvwxyz")},
		{},
		{"type": "nested", "m": map[string]any{"l": []any{1, "two", 3.0}}},
		{"type": "pong", "seq": 1},
	}
	wire := encodeAll(t, Gob(), packets)

	splits := map[string]func(rest int) int{
		"one byte": func(int) int { return 1 },
		"whole":    func(rest int) int { return rest },
		"seven":    func(rest int) int { return min(7, rest) },
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		splits["random"+string(rune('a'+i))] = func(rest int) int { return 1 + rng.Intn(rest) }
	}

	for name, split := range splits {
		d := NewDecoder(Gob(), DefaultMaxFrameSize)
		got := decodeChunks(t, d, wire, split)
		if !reflect.DeepEqual(got, packets) {
			t.Errorf("%s: decoded %v, want %v", name, got, packets)
		}
		if d.Buffered() != 0 {
			t.Errorf("%s: %d bytes left in decoder", name, d.Buffered())
		}
	}
}

func TestDecoder_PartialFrameNeverLeaks(t *testing.T) {
	t.Parallel()

	wire := encodeAll(t, Gob(), []Packet{{"type": "ping"}})
	d := NewDecoder(Gob(), DefaultMaxFrameSize)
	d.Write(wire[:len(wire)-1])

	if p, ok, err := d.Next(); ok || err != nil || p != nil {
		t.Fatalf("Next() on partial frame = (%v, %v, %v)", p, ok, err)
	}
	if d.Buffered() != len(wire)-1 {
		t.Errorf("Buffered() = %d, want %d", d.Buffered(), len(wire)-1)
	}

	d.Reset()
	if d.Buffered() != 0 {
		t.Errorf("Buffered() after Reset() = %d", d.Buffered())
	}
}

func TestDecoder_CorruptPayload(t *testing.T) {
	t.Parallel()

	frame, _ := AppendFrame(nil, []byte{0xde, 0xad, 0xbe, 0xef}, 0)
	d := NewDecoder(Gob(), DefaultMaxFrameSize)
	d.Write(frame)

	if _, _, err := d.Next(); err == nil {
		t.Error("Next() on corrupt payload error = nil")
	}
}
