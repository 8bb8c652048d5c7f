// Package mockstream provides hand-driven input and output streams. Tests
// decide when a stream opens, which bytes arrive, and how much the output
// accepts per write, so every interleaving of stream events can be
// reproduced deterministically.
//
// Unlike real streams, these keep delivering events after Close. That
// lets tests check that consumers ignore late events themselves.
package mockstream

import (
	"sync"

	"dominicbreuker/msgsock/pkg/runloop"
	"dominicbreuker/msgsock/pkg/stream"
)

type base struct {
	self stream.Stream

	mu      sync.Mutex
	loop    *runloop.Loop
	handler stream.Handler
	status  stream.Status
	err     error
	opened  int // calls to Open
	closed  int // calls to Close
}

func (b *base) Schedule(l *runloop.Loop, h stream.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loop, b.handler = l, h
}

func (b *base) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	if b.status == stream.StatusNotOpen {
		b.status = stream.StatusOpening
	}
}

func (b *base) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	b.status = stream.StatusClosed
}

func (b *base) Status() stream.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// OpenCalls returns how often Open was called.
func (b *base) OpenCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// CloseCalls returns how often Close was called.
func (b *base) CloseCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Emit posts ev to the scheduled handler, whatever the stream's status.
func (b *base) Emit(ev stream.Event) {
	b.mu.Lock()
	l, h := b.loop, b.handler
	b.mu.Unlock()
	if l == nil || h == nil {
		return
	}
	l.Post(func() { h.HandleEvent(b.self, ev) })
}

// CompleteOpen marks the stream open and emits EventOpenCompleted.
func (b *base) CompleteOpen() {
	b.mu.Lock()
	if b.status != stream.StatusClosed {
		b.status = stream.StatusOpen
	}
	b.mu.Unlock()
	b.Emit(stream.EventOpenCompleted)
}

// Fail sets err and emits EventErrorOccurred.
func (b *base) Fail(err error) {
	b.mu.Lock()
	if b.status != stream.StatusClosed {
		b.status = stream.StatusError
	}
	b.err = err
	b.mu.Unlock()
	b.Emit(stream.EventErrorOccurred)
}

// Input is a fake readable stream.
type Input struct {
	base
	pending []byte
}

var _ stream.Input = (*Input)(nil)

// Feed makes data readable and emits EventHasBytesAvailable.
func (in *Input) Feed(data []byte) {
	in.mu.Lock()
	in.pending = append(in.pending, data...)
	in.mu.Unlock()
	in.Emit(stream.EventHasBytesAvailable)
}

// End emits EventEndEncountered.
func (in *Input) End() {
	in.mu.Lock()
	if in.status != stream.StatusClosed {
		in.status = stream.StatusAtEnd
	}
	in.mu.Unlock()
	in.Emit(stream.EventEndEncountered)
}

func (in *Input) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := copy(p, in.pending)
	in.pending = in.pending[n:]
	return n, nil
}

func (in *Input) HasBytesAvailable() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending) > 0
}

// Output is a fake writable stream that accepts only as many bytes as the
// test granted.
type Output struct {
	base
	space   int
	written []byte
	writes  int
}

var _ stream.Output = (*Output)(nil)

// Grant lets the next Write accept up to n bytes and emits
// EventHasSpaceAvailable.
func (out *Output) Grant(n int) {
	out.mu.Lock()
	out.space = n
	out.mu.Unlock()
	out.Emit(stream.EventHasSpaceAvailable)
}

// Write consumes the whole grant, even if p is shorter.
func (out *Output) Write(p []byte) (int, error) {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.status != stream.StatusOpen {
		return 0, stream.ErrNotOpen
	}
	out.writes++
	n := min(len(p), out.space)
	out.space = 0
	out.written = append(out.written, p[:n]...)
	return n, nil
}

func (out *Output) HasSpaceAvailable() bool {
	out.mu.Lock()
	defer out.mu.Unlock()
	return out.status == stream.StatusOpen && out.space > 0
}

// Written returns a copy of everything written so far.
func (out *Output) Written() []byte {
	out.mu.Lock()
	defer out.mu.Unlock()
	return append([]byte(nil), out.written...)
}

// Writes returns how often Write was called.
func (out *Output) Writes() int {
	out.mu.Lock()
	defer out.mu.Unlock()
	return out.writes
}

// NewPair returns an unopened pair.
func NewPair() (*Input, *Output) {
	in := &Input{}
	in.self = in
	out := &Output{}
	out.self = out
	return in, out
}
