// Package transport carries the byte streams that connections frame packets
// over. Each protocol package (tcp, ws, udp) offers the same two functions:
//
//	Dial(ctx, addr, deps)   establishes an outbound net.Conn
//	Listen(addr, deps)      returns a net.Listener for inbound ones
//
// so the layers above only ever see net.Conn and net.Listener and stay
// protocol-agnostic. Dial and Listen in this package select the protocol
// from a config.Protocol.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"dominicbreuker/msgsock/pkg/config"
	"dominicbreuker/msgsock/pkg/transport/tcp"
	"dominicbreuker/msgsock/pkg/transport/udp"
	"dominicbreuker/msgsock/pkg/transport/ws"
)

// Dial connects to addr ("host:port") using proto.
func Dial(ctx context.Context, proto config.Protocol, addr string, deps *config.Dependencies) (net.Conn, error) {
	switch proto {
	case 0, config.ProtoTCP:
		return tcp.Dial(ctx, addr, deps)
	case config.ProtoWS:
		return ws.Dial(ctx, addr)
	case config.ProtoUDP:
		return udp.Dial(ctx, addr, deps)
	default:
		return nil, fmt.Errorf("dial %s: unsupported protocol %d", addr, int(proto))
	}
}

// Listen binds addr using proto. Port 0 selects an ephemeral port, which
// the returned listener's Addr reports.
func Listen(proto config.Protocol, addr string, deps *config.Dependencies) (net.Listener, error) {
	switch proto {
	case 0, config.ProtoTCP:
		return tcp.Listen(addr, deps)
	case config.ProtoWS:
		l, err := ws.Listen(addr, deps)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.ProtoUDP:
		l, err := udp.Listen(addr, deps)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("listen %s: unsupported protocol %d", addr, int(proto))
	}
}

// Port extracts the port number from a listener or connection address.
func Port(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case *net.UDPAddr:
		return a.Port
	}
	if addr == nil {
		return 0
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}
