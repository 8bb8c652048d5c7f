package udp

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"dominicbreuker/msgsock/pkg/config"

	kcp "github.com/xtaci/kcp-go/v5"
)

// initTimeout bounds how long a new session may take to deliver its init
// byte before it is dropped.
const initTimeout = 10 * time.Second

// Listener accepts KCP sessions and hands them out once their init byte
// was consumed.
type Listener struct {
	kl *kcp.Listener
	pc net.PacketConn

	conns  chan net.Conn
	errCh  chan error
	closed chan struct{}
	once   sync.Once
}

var _ net.Listener = (*Listener)(nil)

// Listen binds a UDP socket on addr and serves KCP on it.
func Listen(addr string, deps *config.Dependencies) (*Listener, error) {
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return nil, fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", addr, err)
	}

	packetConnFn := config.GetPacketListenerFunc(deps)
	pc, err := packetConnFn("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen(udp, %s): %w", addr, err)
	}

	kl, err := kcp.ServeConn(nil, 0, 0, pc)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("kcp.ServeConn(): %w", err)
	}

	l := &Listener{
		kl:     kl,
		pc:     pc,
		conns:  make(chan net.Conn),
		errCh:  make(chan error, 1),
		closed: make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		sess, err := l.kl.AcceptKCP()
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.errCh <- fmt.Errorf("AcceptKCP(): %w", err)
			}
			return
		}
		configure(sess)
		go l.activate(sess)
	}
}

// activate consumes the init byte so it never reaches the stream layer.
func (l *Listener) activate(sess *kcp.UDPSession) {
	_ = sess.SetReadDeadline(time.Now().Add(initTimeout))
	var b [1]byte
	if _, err := io.ReadFull(sess, b[:]); err != nil {
		_ = sess.Close()
		return
	}
	_ = sess.SetReadDeadline(time.Time{})

	select {
	case l.conns <- sess:
	case <-l.closed:
		_ = sess.Close()
	}
}

// Accept waits for the next activated session.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case err := <-l.errCh:
		return nil, err
	case <-l.closed:
		return nil, fmt.Errorf("accept %s: %w", l.pc.LocalAddr(), net.ErrClosed)
	}
}

// Close stops accepting and releases the UDP socket. Sessions share that
// socket, so they stop working as well.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.kl.Close()
		_ = l.pc.Close()
	})
	return err
}

// Addr returns the bound UDP address.
func (l *Listener) Addr() net.Addr {
	return l.pc.LocalAddr()
}
