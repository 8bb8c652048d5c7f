package log

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggedConn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "capture.bin")
	local, remote := net.Pipe()
	defer remote.Close()

	conn, err := NewLoggedConn(local, path)
	if err != nil {
		t.Fatalf("NewLoggedConn() error = %v", err)
	}

	go func() {
		buf := make([]byte, 3)
		_, _ = io.ReadFull(remote, buf)
		_, _ = remote.Write([]byte("pong"))
	}()

	if _, err := conn.Write([]byte("pin")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	_ = conn.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile() error = %v", err)
	}
	if string(got) != "pinpong" {
		t.Errorf("capture = %q, want %q", got, "pinpong")
	}
}

func TestNewLoggedConn_BadPath(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	if _, err := NewLoggedConn(local, filepath.Join(t.TempDir(), "missing", "x.bin")); err == nil {
		t.Error("NewLoggedConn() error = nil")
	}
}
