package tcp

import (
	"fmt"
	"net"

	"dominicbreuker/msgsock/pkg/config"
)

// Listen binds a TCP listener on addr.
func Listen(addr string, deps *config.Dependencies) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	listen := config.GetTCPListenerFunc(deps)
	nl, err := listen("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen(tcp, %s): %w", addr, err)
	}

	return nl, nil
}
