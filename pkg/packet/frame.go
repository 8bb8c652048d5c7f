package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the size of the length prefix in front of every payload.
const HeaderLen = 4

// DefaultMaxFrameSize bounds the payload a peer may announce.
const DefaultMaxFrameSize = 16 * 1024 * 1024

var (
	ErrFrameTooLarge = errors.New("frame: payload too large")
	ErrEmptyFrame    = errors.New("frame: empty payload")
)

// AppendFrame appends the length prefix and payload to dst.
func AppendFrame(dst, payload []byte, maxSize int) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyFrame
	}
	if maxSize > 0 && len(payload) > maxSize {
		return dst, fmt.Errorf("%d bytes: %w", len(payload), ErrFrameTooLarge)
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// NextFrame looks for one complete frame at the start of buf.
// It returns the payload and the number of bytes the frame occupies.
// consumed == 0 with a nil error means buf does not hold a complete frame
// yet. The payload aliases buf.
func NextFrame(buf []byte, maxSize int) (payload []byte, consumed int, err error) {
	if len(buf) < HeaderLen {
		return nil, 0, nil
	}

	size := binary.BigEndian.Uint32(buf[:HeaderLen])
	if size == 0 {
		return nil, 0, ErrEmptyFrame
	}
	if maxSize > 0 && uint64(size) > uint64(maxSize) {
		return nil, 0, fmt.Errorf("%d bytes announced: %w", size, ErrFrameTooLarge)
	}

	end := HeaderLen + int(size)
	if len(buf) < end {
		return nil, 0, nil
	}

	return buf[HeaderLen:end], end, nil
}

// Encode marshals p with c and frames the result.
func Encode(c Codec, p Packet, maxSize int) ([]byte, error) {
	payload, err := c.Marshal(p)
	if err != nil {
		return nil, err
	}
	return AppendFrame(make([]byte, 0, HeaderLen+len(payload)), payload, maxSize)
}

// Decoder accumulates stream bytes and yields decoded packets.
type Decoder struct {
	codec   Codec
	maxSize int
	buf     []byte
}

// NewDecoder creates a decoder for frames up to maxSize payload bytes.
func NewDecoder(c Codec, maxSize int) *Decoder {
	return &Decoder{codec: c, maxSize: maxSize}
}

// Write appends raw stream bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next removes and decodes the next complete frame. ok is false if no
// complete frame is buffered. Any error is fatal for the stream.
func (d *Decoder) Next() (p Packet, ok bool, err error) {
	payload, n, err := NextFrame(d.buf, d.maxSize)
	if err != nil || n == 0 {
		return nil, false, err
	}

	p, err = d.codec.Unmarshal(payload)
	if err != nil {
		return nil, false, err
	}

	d.buf = d.buf[n:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return p, true, nil
}

// Reset drops all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = nil
}
