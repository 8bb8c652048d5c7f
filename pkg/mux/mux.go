// Package mux carries many connections over one socket. Each connection
// gets its own yamux stream, so a client behind a single TCP, WebSocket or
// KCP socket can talk to a server over several independent connections.
package mux

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"dominicbreuker/msgsock/pkg/connection"
)

// Session is one end of a multiplexed socket.
type Session struct {
	mux     *yamux.Session
	timeout time.Duration
}

// Client starts the dialing side of a session over conn. timeout bounds
// opening a stream when the caller's context has no deadline.
func Client(conn net.Conn, timeout time.Duration) (*Session, error) {
	sess, err := yamux.Client(conn, config())
	if err != nil {
		return nil, fmt.Errorf("yamux.Client(conn): %w", err)
	}
	return &Session{mux: sess, timeout: timeout}, nil
}

// Server starts the accepting side of a session over conn.
func Server(conn net.Conn) (*Session, error) {
	sess, err := yamux.Server(conn, config())
	if err != nil {
		return nil, fmt.Errorf("yamux.Server(conn): %w", err)
	}
	return &Session{mux: sess}, nil
}

// OpenStream opens a new stream, honoring ctx.
func (s *Session) OpenStream(ctx context.Context) (net.Conn, error) {
	if _, has := ctx.Deadline(); !has && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type result struct {
		c   net.Conn
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		c, err := s.mux.Open()
		resCh <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		// the stream may still open later; don't leak it
		go func() {
			if r := <-resCh; r.c != nil {
				_ = r.c.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return nil, fmt.Errorf("session.Open(): %w", r.err)
		}
		return r.c, nil
	}
}

// Open opens a stream and wraps it into a connection that is ready for
// Connect. The connection owns the stream.
func (s *Session) Open(ctx context.Context, observer connection.Observer, opts ...connection.Option) (*connection.Connection, error) {
	stream, err := s.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := connection.New(connection.FromSocket(stream), observer, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("connection.New(): %w", err)
	}
	return conn, nil
}

// Accept waits for the peer to open a stream. It fails once the session is
// closed.
func (s *Session) Accept() (net.Conn, error) {
	c, err := s.mux.Accept()
	if err != nil {
		return nil, fmt.Errorf("session.Accept(): %w", err)
	}
	return c, nil
}

// NumStreams returns the number of open streams.
func (s *Session) NumStreams() int {
	return s.mux.NumStreams()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.mux.CloseChan()
}

// Close closes the session, all of its streams and the underlying socket.
func (s *Session) Close() error {
	return s.mux.Close()
}

func config() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = nil
	cfg.Logger = log.New(io.Discard, "", log.LstdFlags) // discard all console logging in yamux
	return cfg
}
