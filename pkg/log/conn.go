package log

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
)

// loggedConn copies all traffic of a connection to a capture file.
type loggedConn struct {
	net.Conn

	mu      sync.Mutex
	logFile io.WriteCloser
	once    sync.Once
}

func (lc *loggedConn) capture(b []byte) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	_, err := lc.logFile.Write(b)
	return err
}

func (lc *loggedConn) Read(b []byte) (int, error) {
	n, err := lc.Conn.Read(b)
	if n > 0 {
		if cerr := lc.capture(b[:n]); cerr != nil {
			return n, fmt.Errorf("capturing read: %w", cerr)
		}
	}
	return n, err
}

func (lc *loggedConn) Write(b []byte) (int, error) {
	n, err := lc.Conn.Write(b)
	if n > 0 {
		if cerr := lc.capture(b[:n]); cerr != nil {
			return n, fmt.Errorf("capturing write: %w", cerr)
		}
	}
	return n, err
}

// Close closes the connection and the capture file.
func (lc *loggedConn) Close() error {
	err := lc.Conn.Close()
	lc.once.Do(func() {
		lc.mu.Lock()
		defer lc.mu.Unlock()
		_ = lc.logFile.Close()
	})
	return err
}

// NewLoggedConn wraps conn so all bytes read from and written to it are
// appended to the file at logFilePath. Frames stay intact, so the file can
// be replayed through a packet decoder.
func NewLoggedConn(conn net.Conn, logFilePath string) (net.Conn, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", logFilePath, err)
	}

	return &loggedConn{Conn: conn, logFile: logFile}, nil
}
