// Package format converts between host/port pairs and address strings.
package format

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Addr joins host and port, bracketing IPv6 hosts.
func Addr(host string, port int) string {
	if strings.ContainsAny(host, ":") { // IPv6
		return fmt.Sprintf("[%s]:%d", strings.Trim(host, "[]"), port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SplitAddr parses "host:port" into its parts. The host may be empty
// (":1234") and IPv6 hosts must be bracketed.
func SplitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("net.SplitHostPort(%s): %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", portStr, err)
	}
	if err := ValidPort(port, true); err != nil {
		return "", 0, err
	}

	return host, port, nil
}

// ValidPort checks that port is in [1, 65535], or [0, 65535] if zero
// (ephemeral) is allowed.
func ValidPort(port int, allowZero bool) error {
	low := 1
	if allowZero {
		low = 0
	}
	if port < low || port > 65535 {
		return fmt.Errorf("%d not in [%d, 65535]", port, low)
	}
	return nil
}
