//go:build unix

package server

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"dominicbreuker/msgsock/pkg/format"
)

// listenPOSIX sets up the listening socket with socket(2), bind(2) and
// listen(2), then hands it to the Go runtime for accepting.
func listenPOSIX(host string, port int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", format.Addr(host, port))
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", format.Addr(host, port), err)
	}

	family, sa := sockaddr(addr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("unix.Socket(): %w", err)
	}
	unix.CloseOnExec(fd)

	if err := bindAndListen(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen(tcp, %s): %w", addr, err)
	}

	f := os.NewFile(uintptr(fd), "msgsock-listener")
	defer f.Close() // FileListener holds its own duplicate

	l, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener(): %w", err)
	}
	return l, nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if addr.IP == nil || addr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To4())
		}
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}

func bindAndListen(fd int, sa unix.Sockaddr) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("bind(): %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen(): %w", err)
	}
	return nil
}
