//go:build !unix

package server

import (
	"fmt"
	"net"
	"runtime"
)

func listenPOSIX(host string, port int) (net.Listener, error) {
	return nil, fmt.Errorf("posix listen mode is not supported on %s", runtime.GOOS)
}
