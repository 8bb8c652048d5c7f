// Package udp provides reliable, ordered streams over UDP using KCP.
package udp

import (
	"context"
	"fmt"
	"net"

	"dominicbreuker/msgsock/pkg/config"

	kcp "github.com/xtaci/kcp-go/v5"
)

// initByte is sent by the dialer right away. A KCP listener only learns
// about a session when the first segment arrives, and a client that waits
// for the server to speak first would otherwise never be accepted.
const initByte = 0x00

// configure applies the low-latency settings shared by both sides.
// SetNoDelay(nodelay, interval ms, fast resend, no congestion control).
func configure(s *kcp.UDPSession) {
	s.SetNoDelay(1, 10, 2, 1)
	s.SetStreamMode(true)
	s.SetWindowSize(1024, 1024)
}

// Dial opens a KCP session to addr over a fresh UDP socket.
func Dial(ctx context.Context, addr string, deps *config.Dependencies) (net.Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", addr, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	packetConnFn := config.GetPacketListenerFunc(deps)
	pc, err := packetConnFn("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("net.ListenPacket(udp, :0): %w", err)
	}

	// no block cipher, no forward error correction
	sess, err := kcp.NewConn(udpAddr.String(), nil, 0, 0, pc)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("kcp.NewConn(%s): %w", udpAddr.String(), err)
	}
	configure(sess)

	if _, err := sess.Write([]byte{initByte}); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("write init byte: %w", err)
	}

	return &ownedConn{UDPSession: sess, pc: pc}, nil
}

// ownedConn closes the UDP socket together with the session, since
// kcp.NewConn leaves sockets it did not create open.
type ownedConn struct {
	*kcp.UDPSession
	pc net.PacketConn
}

func (c *ownedConn) Close() error {
	err := c.UDPSession.Close()
	_ = c.pc.Close()
	return err
}
