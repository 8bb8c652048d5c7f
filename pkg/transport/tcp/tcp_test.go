package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	mocktcp "dominicbreuker/msgsock/mocks/tcp"
	"dominicbreuker/msgsock/pkg/config"
)

func TestListenAndDial_Mock(t *testing.T) {
	t.Parallel()

	mockNet := mocktcp.NewMockTCPNetwork()
	deps := &config.Dependencies{
		TCPDialer:   mockNet.DialTCPContext,
		TCPListener: mockNet.ListenTCP,
	}

	ln, err := Listen("127.0.0.1:0", deps)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Addr().String(), deps)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	srv := <-accepted
	defer srv.Close()

	go func() { _, _ = conn.Write([]byte("ping")) }()
	buf := make([]byte, 4)
	if _, err := io.ReadFull(srv, buf); err != nil || string(buf) != "ping" {
		t.Errorf("ReadFull() = %q, %v", buf, err)
	}
}

func TestListenAndDial_Loopback(t *testing.T) {
	t.Parallel()

	ln, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			_, _ = c.Write([]byte("hi"))
			_ = c.Close()
		}
	}()

	conn, err := Dial(context.Background(), ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	b, err := io.ReadAll(conn)
	if err != nil || string(b) != "hi" {
		t.Errorf("ReadAll() = %q, %v", b, err)
	}
}

func TestDial_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr string
	}{
		{"unresolvable", "not-a-valid-address"},
		{"refused", "127.0.0.1:1"},
	}

	mockNet := mocktcp.NewMockTCPNetwork()
	deps := &config.Dependencies{TCPDialer: mockNet.DialTCPContext}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Dial(context.Background(), tc.addr, deps); err == nil {
				t.Errorf("Dial(%q) error = nil", tc.addr)
			}
		})
	}
}
