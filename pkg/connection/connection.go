// Package connection turns a duplex byte stream into a sequence of packets.
//
// A Connection is created from one of three origins (a host and port to
// dial, an accepted socket, or a discovered service) and behaves the same
// way for all of them once its streams are open. Incoming bytes are
// buffered until a complete frame arrived, so observers only ever see
// whole packets. Outgoing packets are framed into a buffer that is flushed
// whenever the output stream reports space.
//
// All stream events are handled on a runloop.Loop. Observer callbacks run
// on that loop too, without any connection lock held, so observers may
// call back into the connection. Public methods are safe for concurrent
// use.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"dominicbreuker/msgsock/pkg/discovery"
	"dominicbreuker/msgsock/pkg/format"
	"dominicbreuker/msgsock/pkg/log"
	"dominicbreuker/msgsock/pkg/packet"
	"dominicbreuker/msgsock/pkg/runloop"
	"dominicbreuker/msgsock/pkg/stream"
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// Observer receives the events of a connection. It is not owned by the
// connection and must stay usable until Close returned or a terminal event
// (ConnectionAttemptFailed, ConnectionTerminated) was delivered.
type Observer interface {
	// ConnectionAttemptFailed reports that the connection ended before
	// either of its streams opened.
	ConnectionAttemptFailed(c *Connection)
	// ConnectionTerminated reports that an open connection ended because
	// of a stream error, end of stream, or an undecodable frame. It is not
	// called for Close.
	ConnectionTerminated(c *Connection)
	// ReceivedNetworkPacket delivers one decoded packet.
	ReceivedNetworkPacket(p packet.Packet, c *Connection)
}

// OpenObserver is optionally implemented by an Observer that wants to know
// when both streams are open.
type OpenObserver interface {
	ConnectionOpened(c *Connection)
}

// State is the lifecycle state of a connection.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connection frames packets over one input and one output stream.
type Connection struct {
	origin Origin
	opts   options
	logger *log.Logger

	mu           sync.Mutex
	observer     Observer
	loop         *runloop.Loop
	ownsLoop     bool
	state        State
	service      discovery.Service
	in           stream.Input
	out          stream.Output
	inOpen       bool
	outOpen      bool
	everOpened   bool
	openNotified bool
	dec          *packet.Decoder
	readBuf      []byte
	outgoing     []byte
	err          error
	silenced     bool
	cancel       context.CancelFunc
}

// notes collects what to tell the observer once the lock is released.
type notes struct {
	opened     bool
	packets    []packet.Packet
	failed     bool
	terminated bool
}

func (n *notes) terminal() bool {
	return n.failed || n.terminated
}

// New creates a connection. It performs no I/O, except that a socket
// origin is wrapped into its stream pair right away. observer may be nil
// and set later with SetObserver, but must be set before Connect.
func New(origin Origin, observer Observer, opts ...Option) (*Connection, error) {
	if err := origin.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection{
		origin:   origin,
		opts:     o,
		logger:   o.logger,
		observer: observer,
		loop:     o.loop,
		dec:      packet.NewDecoder(o.codec, o.maxFrame),
	}

	switch {
	case o.in != nil && o.out != nil:
		c.in, c.out = o.in, o.out
	case origin.Kind == OriginSocket:
		conn := origin.Conn
		if o.logFile != "" {
			lc, err := log.NewLoggedConn(conn, o.logFile)
			if err != nil {
				return nil, err
			}
			conn = lc
		}
		c.in, c.out = stream.NewPair(conn, c.streamOptions())
	}

	return c, nil
}

func (c *Connection) streamOptions() stream.Options {
	return stream.Options{ReadChunk: c.opts.readChunk, WriteChunk: c.opts.writeChunk}
}

// SetObserver replaces the observer.
func (c *Connection) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Origin returns the origin the connection was created from.
func (c *Connection) Origin() Origin {
	return c.origin
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns why the connection ended, or nil. End of stream is io.EOF.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Service returns the resolved service of a service origin.
func (c *Connection) Service() discovery.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service
}

// PendingBytes returns the size of the outgoing backlog. The backlog is not
// bounded; callers that send faster than the peer reads should watch it.
func (c *Connection) PendingBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outgoing)
}

func (c *Connection) socket() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.in.(interface{ Conn() net.Conn }); ok {
		if conn := s.Conn(); conn != nil {
			return conn
		}
	}
	return c.origin.Conn
}

// RemoteAddr returns the peer address once the socket exists, else nil.
func (c *Connection) RemoteAddr() net.Addr {
	if conn := c.socket(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// LocalAddr returns the local address once the socket exists, else nil.
func (c *Connection) LocalAddr() net.Addr {
	if conn := c.socket(); conn != nil {
		return conn.LocalAddr()
	}
	return nil
}

func (c *Connection) String() string {
	return c.origin.String()
}

// Connect opens the streams. It returns false if the connection is not
// idle, or if the streams cannot be created, in which case
// ConnectionAttemptFailed is delivered once. Completion is reported
// asynchronously through the observer.
func (c *Connection) Connect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return false
	}
	c.ensureLoop()

	if c.in != nil {
		c.startStreams()
		return true
	}

	switch c.origin.Kind {
	case OriginHostPort:
		if err := validateHostPort(c.origin.Host, c.origin.Port); err != nil {
			c.failEarly(err)
			return false
		}
		c.in, c.out = c.dialPair(c.origin.Host, c.origin.Port)
		c.startStreams()

	case OriginService:
		if c.opts.resolver == nil {
			c.failEarly(fmt.Errorf("resolve %s: no resolver", c.origin.Service.FullName()))
			return false
		}
		c.state = StateResolving
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
		c.cancel = cancel
		go c.resolve(ctx, c.loop)

	default:
		// socket origins got their streams in New
		c.failEarly(fmt.Errorf("connect %s: %w", c.origin, ErrInvalidOrigin))
		return false
	}

	return true
}

func validateHostPort(host string, port int) error {
	if host == "" {
		return fmt.Errorf("connect: empty host")
	}
	if err := format.ValidPort(port, false); err != nil {
		return fmt.Errorf("connect %s: port %w", format.Addr(host, port), err)
	}
	return nil
}

// ensureLoop must be called with c.mu held.
func (c *Connection) ensureLoop() {
	if c.loop == nil {
		c.loop = runloop.New()
		c.ownsLoop = true
	}
}

// failEarly ends a connection whose streams could not be created. The
// failure is delivered on the loop like every other event. It must be
// called with c.mu held.
func (c *Connection) failEarly(err error) {
	n := &notes{}
	c.terminate(err, n)
	c.loop.Post(func() { c.deliver(n) })
}

func (c *Connection) dialPair(host string, port int) (*stream.SocketInput, *stream.SocketOutput) {
	dial := c.opts.dialFunc()
	timeout := c.opts.timeout
	logFile := c.opts.logFile

	return stream.NewDialPair(func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		conn, err := dial(ctx, host, port)
		if err != nil {
			return nil, err
		}
		if logFile != "" {
			lc, err := log.NewLoggedConn(conn, logFile)
			if err != nil {
				_ = conn.Close()
				return nil, err
			}
			conn = lc
		}
		return conn, nil
	}, c.streamOptions())
}

func (c *Connection) resolve(ctx context.Context, loop *runloop.Loop) {
	svc, err := c.opts.resolver.Resolve(ctx, c.origin.Service)
	loop.Post(func() { c.resolved(svc, err) })
}

func (c *Connection) resolved(svc discovery.Service, err error) {
	c.mu.Lock()
	if c.state != StateResolving {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err == nil {
		err = validateHostPort(svc.Host, svc.Port)
	}
	if err != nil {
		n := &notes{}
		c.terminate(fmt.Errorf("resolve %s: %w", c.origin.Service.FullName(), err), n)
		c.mu.Unlock()
		c.deliver(n)
		return
	}

	c.logger.VerboseMsg("conn %s: resolved to %s", c.origin, svc.Addr())
	c.service = svc
	c.in, c.out = c.dialPair(svc.Host, svc.Port)
	c.startStreams()
	c.mu.Unlock()
}

// startStreams must be called with c.mu held.
func (c *Connection) startStreams() {
	c.state = StateConnecting
	c.in.Schedule(c.loop, c)
	c.out.Schedule(c.loop, c)
	c.in.Open()
	c.out.Open()
}

// HandleEvent implements stream.Handler. It runs on the loop.
func (c *Connection) HandleEvent(s stream.Stream, ev stream.Event) {
	c.mu.Lock()
	if c.state == StateClosed || c.in == nil {
		c.mu.Unlock()
		return
	}

	isInput := s == stream.Stream(c.in)
	isOutput := s == stream.Stream(c.out)
	if !isInput && !isOutput {
		c.mu.Unlock()
		return
	}

	n := &notes{}
	switch ev {
	case stream.EventOpenCompleted:
		if isInput {
			c.inOpen = true
		} else {
			c.outOpen = true
		}
		c.everOpened = true
		if c.inOpen && c.outOpen && !c.openNotified {
			c.openNotified = true
			c.state = StateOpen
			n.opened = true
			c.logger.VerboseMsg("conn %s: open", c.origin)
		}

	case stream.EventHasBytesAvailable:
		if isInput {
			c.readAvailable(n)
		}

	case stream.EventHasSpaceAvailable:
		if isOutput {
			if err := c.flush(); err != nil {
				c.terminate(err, n)
			}
		}

	case stream.EventErrorOccurred:
		err := s.Err()
		if err == nil {
			err = fmt.Errorf("stream error")
		}
		c.terminate(err, n)

	case stream.EventEndEncountered:
		c.terminate(io.EOF, n)
	}
	c.mu.Unlock()

	c.deliver(n)
}

// readAvailable drains the input stream and decodes every complete frame.
// It must be called with c.mu held.
func (c *Connection) readAvailable(n *notes) {
	if c.readBuf == nil {
		size := c.opts.readChunk
		if size <= 0 {
			size = stream.DefaultReadChunk
		}
		c.readBuf = make([]byte, size)
	}

	for c.in.HasBytesAvailable() {
		k, err := c.in.Read(c.readBuf)
		if k > 0 {
			_, _ = c.dec.Write(c.readBuf[:k])
		}
		if err != nil || k == 0 {
			// errors arrive as their own stream events
			break
		}
	}

	for {
		p, ok, err := c.dec.Next()
		if err != nil {
			c.terminate(fmt.Errorf("decode: %w", err), n)
			return
		}
		if !ok {
			return
		}
		n.packets = append(n.packets, p)
	}
}

// flush hands as much of the backlog to the output stream as it accepts in
// one write. It must be called with c.mu held.
func (c *Connection) flush() error {
	if len(c.outgoing) == 0 || c.out == nil || !c.out.HasSpaceAvailable() {
		return nil
	}

	k, err := c.out.Write(c.outgoing)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.outgoing = c.outgoing[k:]
	if len(c.outgoing) == 0 {
		c.outgoing = nil
	}
	return nil
}

// terminate closes everything and records which terminal event is due. It
// must be called with c.mu held.
func (c *Connection) terminate(err error, n *notes) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.err = err
	c.release()

	if c.everOpened {
		n.terminated = true
		c.logger.VerboseMsg("conn %s: terminated: %s", c.origin, err)
	} else {
		n.failed = true
		c.logger.VerboseMsg("conn %s: attempt failed: %s", c.origin, err)
	}
}

// release must be called with c.mu held.
func (c *Connection) release() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.in != nil {
		c.in.Close()
	}
	if c.out != nil {
		c.out.Close()
	}
	c.dec.Reset()
	c.outgoing = nil
	c.readBuf = nil
}

// live returns the observer if callbacks may still be delivered.
func (c *Connection) live() (Observer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.silenced || c.observer == nil {
		return nil, false
	}
	return c.observer, true
}

// deliver runs the collected callbacks without holding c.mu. Each callback
// first checks that Close was not called meanwhile, possibly by the
// previous callback.
func (c *Connection) deliver(n *notes) {
	if n.opened {
		if obs, ok := c.live(); ok {
			if oo, ok := obs.(OpenObserver); ok {
				oo.ConnectionOpened(c)
			}
		}
	}

	for _, p := range n.packets {
		obs, ok := c.live()
		if !ok {
			break
		}
		obs.ReceivedNetworkPacket(p, c)
	}

	if n.failed {
		if obs, ok := c.live(); ok {
			obs.ConnectionAttemptFailed(c)
		}
	}
	if n.terminated {
		if obs, ok := c.live(); ok {
			obs.ConnectionTerminated(c)
		}
	}

	if n.terminal() {
		c.stopOwnedLoop()
	}
}

func (c *Connection) stopOwnedLoop() {
	c.mu.Lock()
	l, owned := c.loop, c.ownsLoop
	c.mu.Unlock()
	if owned && l != nil {
		l.Stop()
	}
}

// SendNetworkPacket frames p and queues it. The bytes are written right
// away if the output stream has space, otherwise on its next writable
// event. Packets may be sent before the connection is open. Encoding
// errors are returned and leave the connection intact.
func (c *Connection) SendNetworkPacket(p packet.Packet) error {
	frame, err := packet.Encode(c.opts.codec, p, c.opts.maxFrame)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Type(), err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.outgoing = append(c.outgoing, frame...)
	n := &notes{}
	if err := c.flush(); err != nil {
		c.terminate(err, n)
	}
	loop := c.loop
	c.mu.Unlock()

	if n.terminal() && loop != nil {
		// deliver on the loop, never on the caller's goroutine
		loop.Post(func() { c.deliver(n) })
	}
	return nil
}

// Close tears the connection down. It is idempotent and never delivers
// ConnectionTerminated; once it returns, no further callbacks start.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.silenced {
		c.mu.Unlock()
		return
	}
	c.silenced = true
	c.state = StateClosed
	// also releases the socket of an origin that was never connected
	c.release()
	l, owned := c.loop, c.ownsLoop
	c.mu.Unlock()

	c.logger.VerboseMsg("conn %s: closed", c.origin)
	if owned && l != nil {
		l.Stop()
	}
}
