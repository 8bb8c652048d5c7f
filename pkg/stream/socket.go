package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"dominicbreuker/msgsock/pkg/runloop"
)

const (
	// DefaultReadChunk is how much an input stream reads from the socket at once.
	DefaultReadChunk = 32 * 1024
	// DefaultWriteChunk is the most an output stream accepts per Write.
	DefaultWriteChunk = 64 * 1024
)

// DialFunc establishes the socket behind a pair.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Options tune a stream pair. Zero values select the defaults.
type Options struct {
	ReadChunk  int
	WriteChunk int
}

func (o Options) withDefaults() Options {
	if o.ReadChunk <= 0 {
		o.ReadChunk = DefaultReadChunk
	}
	if o.WriteChunk <= 0 {
		o.WriteChunk = DefaultWriteChunk
	}
	return o
}

// socket is shared by both halves of a pair. It is dialed once, by whichever
// half opens first, and closed when both halves are closed.
type socket struct {
	dial   DialFunc
	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	conn net.Conn
	err  error

	mu       sync.Mutex
	released int
	closed   bool
}

func (s *socket) connect() (net.Conn, error) {
	s.once.Do(func() {
		if s.conn != nil {
			return
		}
		conn, err := s.dial(s.ctx)
		if err != nil {
			s.err = err
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = conn.Close()
			s.err = net.ErrClosed
			return
		}
		s.conn = conn
	})
	return s.conn, s.err
}

func (s *socket) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *socket) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released++
	if s.released < 2 || s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close() // best effort
	}
}

// NewPair wraps an already connected socket.
func NewPair(conn net.Conn, opts Options) (*SocketInput, *SocketOutput) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		dial: func(context.Context) (net.Conn, error) {
			return conn, nil
		},
	}
	return newPair(s, opts)
}

// NewDialPair creates a pair whose socket is established by dial when the
// first half is opened.
func NewDialPair(dial DialFunc, opts Options) (*SocketInput, *SocketOutput) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &socket{
		dial:   dial,
		ctx:    ctx,
		cancel: cancel,
	}
	return newPair(s, opts)
}

func newPair(s *socket, opts Options) (*SocketInput, *SocketOutput) {
	opts = opts.withDefaults()

	in := &SocketInput{chunk: opts.ReadChunk, drained: make(chan struct{}, 1)}
	in.init(s, in)

	out := &SocketOutput{chunk: opts.WriteChunk, kick: make(chan struct{}, 1)}
	out.init(s, out)

	return in, out
}

type base struct {
	sock *socket
	self Stream

	mu      sync.Mutex
	status  Status
	err     error
	loop    *runloop.Loop
	handler Handler
	closed  chan struct{}
}

func (b *base) init(s *socket, self Stream) {
	b.sock = s
	b.self = self
	b.closed = make(chan struct{})
}

func (b *base) Schedule(l *runloop.Loop, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loop = l
	b.handler = h
}

func (b *base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Conn returns the underlying socket, or nil before it is established.
func (b *base) Conn() net.Conn {
	return b.sock.current()
}

// beginOpen moves NotOpen to Opening and reports whether it did.
func (b *base) beginOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusNotOpen {
		return false
	}
	b.status = StatusOpening
	return true
}

func (b *base) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// transition sets a new status unless the stream was closed meanwhile.
func (b *base) transition(st Status, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusClosed {
		return false
	}
	b.status = st
	if err != nil {
		b.err = err
	}
	return true
}

func (b *base) post(ev Event) {
	b.mu.Lock()
	l, h := b.loop, b.handler
	b.mu.Unlock()
	if l == nil || h == nil {
		return
	}

	l.Post(func() {
		if b.isClosed() {
			return
		}
		h.HandleEvent(b.self, ev)
	})
}

func (b *base) fail(err error) {
	if b.transition(StatusError, err) {
		b.post(EventErrorOccurred)
	}
}

// closeBase reports whether this call closed the stream.
func (b *base) closeBase() bool {
	b.mu.Lock()
	if b.status == StatusClosed {
		b.mu.Unlock()
		return false
	}
	b.status = StatusClosed
	close(b.closed)
	b.mu.Unlock()

	b.sock.release()
	return true
}

// SocketInput is the readable half of a socket pair.
type SocketInput struct {
	base
	chunk   int
	pending []byte
	drained chan struct{}
}

var _ Input = (*SocketInput)(nil)

// Open starts the reader goroutine.
func (in *SocketInput) Open() {
	if !in.beginOpen() {
		return
	}
	go in.run()
}

func (in *SocketInput) run() {
	conn, err := in.sock.connect()
	if err != nil {
		in.fail(fmt.Errorf("connect: %w", err))
		return
	}
	if !in.transition(StatusOpen, nil) {
		return
	}
	in.post(EventOpenCompleted)

	buf := make([]byte, in.chunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			in.mu.Lock()
			if in.status == StatusClosed {
				in.mu.Unlock()
				return
			}
			in.pending = append(in.pending, buf[:n]...)
			in.mu.Unlock()

			in.post(EventHasBytesAvailable)

			select {
			case <-in.drained:
			case <-in.closed:
				return
			}
		}

		if err != nil {
			if in.isClosed() {
				return
			}
			if errors.Is(err, io.EOF) {
				if in.transition(StatusAtEnd, nil) {
					in.post(EventEndEncountered)
				}
				return
			}
			in.fail(fmt.Errorf("read: %w", err))
			return
		}
	}
}

// Read drains buffered bytes.
func (in *SocketInput) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.pending) == 0 {
		switch in.status {
		case StatusAtEnd:
			return 0, io.EOF
		case StatusError:
			return 0, in.err
		case StatusClosed, StatusNotOpen:
			return 0, ErrNotOpen
		}
		return 0, nil
	}

	n := copy(p, in.pending)
	in.pending = in.pending[n:]
	if len(in.pending) == 0 {
		in.pending = nil
		select {
		case in.drained <- struct{}{}:
		default:
		}
	}
	return n, nil
}

// HasBytesAvailable reports whether Read would return data.
func (in *SocketInput) HasBytesAvailable() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending) > 0
}

// Close closes the stream and, once the output is closed too, the socket.
func (in *SocketInput) Close() {
	in.mu.Lock()
	in.pending = nil
	in.mu.Unlock()
	in.closeBase()
}

// SocketOutput is the writable half of a socket pair.
type SocketOutput struct {
	base
	chunk    int
	inflight []byte
	kick     chan struct{}
}

var _ Output = (*SocketOutput)(nil)

// Open starts the writer goroutine.
func (out *SocketOutput) Open() {
	if !out.beginOpen() {
		return
	}
	go out.run()
}

func (out *SocketOutput) run() {
	conn, err := out.sock.connect()
	if err != nil {
		out.fail(fmt.Errorf("connect: %w", err))
		return
	}
	if !out.transition(StatusOpen, nil) {
		return
	}
	out.post(EventOpenCompleted)
	out.post(EventHasSpaceAvailable)

	for {
		select {
		case <-out.kick:
		case <-out.closed:
			return
		}

		out.mu.Lock()
		data := out.inflight
		out.mu.Unlock()

		_, err := conn.Write(data)

		out.mu.Lock()
		if out.status == StatusClosed {
			out.mu.Unlock()
			return
		}
		out.inflight = nil
		out.mu.Unlock()

		if err != nil {
			out.fail(fmt.Errorf("write: %w", err))
			return
		}
		out.post(EventHasSpaceAvailable)
	}
}

// Write hands up to one chunk of p to the writer goroutine.
func (out *SocketOutput) Write(p []byte) (int, error) {
	out.mu.Lock()
	defer out.mu.Unlock()

	switch out.status {
	case StatusOpen:
	case StatusError:
		return 0, out.err
	default:
		return 0, ErrNotOpen
	}
	if out.inflight != nil || len(p) == 0 {
		return 0, nil
	}

	n := min(len(p), out.chunk)
	out.inflight = append([]byte(nil), p[:n]...)
	select {
	case out.kick <- struct{}{}:
	default:
	}
	return n, nil
}

// HasSpaceAvailable reports whether Write would accept data.
func (out *SocketOutput) HasSpaceAvailable() bool {
	out.mu.Lock()
	defer out.mu.Unlock()
	return out.status == StatusOpen && out.inflight == nil
}

// Close closes the stream and, once the input is closed too, the socket.
func (out *SocketOutput) Close() {
	out.mu.Lock()
	out.inflight = nil
	out.mu.Unlock()
	out.closeBase()
}
