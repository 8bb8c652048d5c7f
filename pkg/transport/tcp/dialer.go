// Package tcp dials and listens on plain TCP through the injectable
// functions in config.Dependencies.
package tcp

import (
	"context"
	"fmt"
	"net"

	"dominicbreuker/msgsock/pkg/config"
)

// Dial establishes a TCP connection to addr with keep-alive enabled.
func Dial(ctx context.Context, addr string, deps *config.Dependencies) (net.Conn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	dial := config.GetTCPDialerFunc(deps)
	conn, err := dial(ctx, "tcp", nil, tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial(tcp, %s): %w", tcpAddr.String(), err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}
