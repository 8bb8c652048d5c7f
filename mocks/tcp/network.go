// Package tcp provides an in-memory TCP network for tests. Listeners and
// dialers are plain functions matching config.TCPListenerFunc and
// config.TCPDialerFunc, and connections are net.Pipe pairs.
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// firstEphemeralPort is where port assignment for ":0" listeners and
// unbound dialers starts.
const firstEphemeralPort = 49152

// MockTCPNetwork simulates a TCP network without real sockets.
type MockTCPNetwork struct {
	listeners    map[string]*MockTCPListener
	nextPort     int
	mu           sync.Mutex
	listenerCond *sync.Cond // signals listener changes
}

// NewMockTCPNetwork creates an empty network.
func NewMockTCPNetwork() *MockTCPNetwork {
	m := &MockTCPNetwork{
		listeners: make(map[string]*MockTCPListener),
		nextPort:  firstEphemeralPort,
	}
	m.listenerCond = sync.NewCond(&m.mu)
	return m
}

// ephemeralPort must be called with m.mu held.
func (m *MockTCPNetwork) ephemeralPort(ip net.IP) int {
	for {
		port := m.nextPort
		m.nextPort++
		if m.nextPort > 65535 {
			m.nextPort = firstEphemeralPort
		}
		addr := (&net.TCPAddr{IP: ip, Port: port}).String()
		if _, taken := m.listeners[addr]; !taken {
			return port
		}
	}
}

// ListenTCP creates a listener. Port 0 is replaced by a free port, which
// the listener's Addr reports.
func (m *MockTCPNetwork) ListenTCP(network string, laddr *net.TCPAddr) (net.Listener, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bound := &net.TCPAddr{IP: laddr.IP, Port: laddr.Port, Zone: laddr.Zone}
	if bound.IP == nil {
		bound.IP = net.IPv4(127, 0, 0, 1)
	}
	if bound.Port == 0 {
		bound.Port = m.ephemeralPort(bound.IP)
	}

	addr := bound.String()
	if _, exists := m.listeners[addr]; exists {
		return nil, fmt.Errorf("address already in use: %s", addr)
	}

	listener := &MockTCPListener{
		addr:       bound,
		connCh:     make(chan *MockTCPConn, 10),
		acceptedCh: make(chan *MockTCPConn, 16),
		closeCh:    make(chan struct{}),
		network:    m,
	}
	m.listeners[addr] = listener
	m.listenerCond.Broadcast()

	return listener, nil
}

// DialTCP connects to the listener at raddr.
func (m *MockTCPNetwork) DialTCP(network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
	return m.DialTCPContext(context.Background(), network, laddr, raddr)
}

// DialTCPContext has the shape of config.TCPDialerFunc. The handshake
// gives up when ctx is done, or after one second if nobody accepts.
func (m *MockTCPNetwork) DialTCPContext(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	listener, exists := m.listeners[raddr.String()]
	if exists && laddr == nil {
		laddr = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: m.ephemeralPort(nil)}
	}
	m.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("connection refused: no listener on %s", raddr.String())
	}

	clientConn, serverConn := net.Pipe()

	mockClient := &MockTCPConn{Conn: clientConn, localAddr: laddr, remoteAddr: raddr}
	mockServer := &MockTCPConn{Conn: serverConn, localAddr: raddr, remoteAddr: laddr}

	select {
	case listener.connCh <- mockServer:
		return mockClient, nil
	case <-listener.closeCh:
		err := fmt.Errorf("connection refused: listener closed")
		_ = clientConn.Close()
		_ = serverConn.Close()
		return nil, err
	case <-ctx.Done():
		_ = clientConn.Close()
		_ = serverConn.Close()
		return nil, ctx.Err()
	case <-time.After(1 * time.Second):
		_ = clientConn.Close()
		_ = serverConn.Close()
		return nil, fmt.Errorf("connection timeout")
	}
}

// WaitForListener waits until a listener exists on addr. The timeout is in
// milliseconds.
func (m *MockTCPNetwork) WaitForListener(addr string, timeoutMs int) (*MockTCPListener, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if l, exists := m.listeners[addr]; exists {
			return l, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for listener on %s", addr)
		}

		// wake up periodically to check the deadline
		go func() {
			time.Sleep(50 * time.Millisecond)
			m.listenerCond.Broadcast()
		}()
		m.listenerCond.Wait()
	}
}
