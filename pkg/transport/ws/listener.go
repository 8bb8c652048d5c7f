package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/transport/tcp"

	"github.com/coder/websocket"
)

// Listener accepts WebSocket connections through an HTTP server and hands
// them out as net.Conn.
type Listener struct {
	nl  net.Listener
	srv *http.Server

	conns  chan net.Conn
	errCh  chan error
	closed chan struct{}
	once   sync.Once
}

var _ net.Listener = (*Listener)(nil)

// Listen binds a TCP listener on addr and serves WebSocket upgrades on it.
func Listen(addr string, deps *config.Dependencies) (*Listener, error) {
	nl, err := tcp.Listen(addr, deps)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		nl:     nl,
		conns:  make(chan net.Conn),
		errCh:  make(chan error, 1),
		closed: make(chan struct{}),
	}
	l.srv = &http.Server{
		Handler:           http.HandlerFunc(l.upgrade),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := l.srv.Serve(nl)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.errCh <- fmt.Errorf("http.Server.Serve(): %w", err)
		}
	}()

	return l, nil
}

// upgrade runs for the lifetime of one WebSocket connection.
func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		return // Accept already wrote the HTTP error
	}
	if c.Subprotocol() != subprotocol {
		_ = c.Close(websocket.StatusPolicyViolation, "unsupported subprotocol")
		return
	}

	conn := &trackedConn{
		Conn: websocket.NetConn(context.Background(), c, websocket.MessageBinary),
		done: make(chan struct{}),
	}

	select {
	case l.conns <- conn:
	case <-l.closed:
		_ = conn.Close()
		return
	}

	<-conn.done
}

// Accept waits for the next upgraded connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	case <-l.closed:
		return nil, fmt.Errorf("accept %s: %w", l.nl.Addr(), net.ErrClosed)
	}
}

// Close stops accepting. Connections already handed out stay open.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

// Addr returns the bound TCP address.
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// trackedConn lets the HTTP handler return once the connection is closed.
type trackedConn struct {
	net.Conn
	once sync.Once
	done chan struct{}
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}
