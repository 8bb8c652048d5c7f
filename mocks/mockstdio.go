// Package mocks provides mock implementations for testing.
package mocks

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MockStdio stands in for the process's stdin and stdout. Stdin is a pipe
// fed by WriteToStdin and ended by CloseStdin; stdout collects everything
// written to it.
type MockStdio struct {
	stdinReader *io.PipeReader
	stdinWriter *io.PipeWriter

	mu      sync.Mutex
	changed *sync.Cond
	output  bytes.Buffer
	closed  bool
}

// NewMockStdio creates a new mock stdio.
func NewMockStdio() *MockStdio {
	r, w := io.Pipe()
	m := &MockStdio{stdinReader: r, stdinWriter: w}
	m.changed = sync.NewCond(&m.mu)
	return m
}

// WriteToStdin writes data to stdin. It blocks until the data was read.
func (m *MockStdio) WriteToStdin(data []byte) (int, error) {
	return m.stdinWriter.Write(data)
}

// WriteLines writes each line to stdin followed by a newline.
func (m *MockStdio) WriteLines(lines ...string) error {
	for _, l := range lines {
		if _, err := m.WriteToStdin([]byte(l + "\n")); err != nil {
			return err
		}
	}
	return nil
}

// CloseStdin makes the reader see end of input.
func (m *MockStdio) CloseStdin() error {
	return m.stdinWriter.Close()
}

// ReadFromStdout returns everything written to stdout so far.
func (m *MockStdio) ReadFromStdout() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output.String()
}

// OutputLines returns the complete lines written to stdout so far.
func (m *MockStdio) OutputLines() []string {
	out := m.ReadFromStdout()
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		return strings.Split(out[:i], "\n")
	}
	return nil
}

// GetStdin returns the reader to inject as stdin.
func (m *MockStdio) GetStdin() io.Reader {
	return m.stdinReader
}

// GetStdout returns the writer to inject as stdout.
func (m *MockStdio) GetStdout() io.Writer {
	return stdoutWriter{m}
}

type stdoutWriter struct{ m *MockStdio }

func (w stdoutWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.m.closed {
		return 0, io.ErrClosedPipe
	}
	w.m.output.Write(p)
	w.m.changed.Broadcast()
	return len(p), nil
}

// WaitForOutput waits until stdout contains expected. The timeout is in
// milliseconds.
func (m *MockStdio) WaitForOutput(expected string, timeoutMs int) error {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	stop := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		m.mu.Lock()
		m.changed.Broadcast()
		m.mu.Unlock()
	})
	defer stop.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for !strings.Contains(m.output.String(), expected) {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for output %q, got: %q", expected, m.output.String())
		}
		m.changed.Wait()
	}
	return nil
}

// Close ends stdin and makes further stdout writes fail.
func (m *MockStdio) Close() error {
	m.mu.Lock()
	m.closed = true
	m.changed.Broadcast()
	m.mu.Unlock()
	return m.stdinWriter.Close()
}
