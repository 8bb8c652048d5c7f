// Package pipeio adapts the process's standard streams for the CLI.
package pipeio

import (
	"io"
	"os"
	"sync"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// Stdio provides a ReadWriteCloser over standard input and output.
// It uses cancelable reading from stdin when supported, allowing a
// blocked Read to be interrupted via Close. Writes are serialized so lines
// printed from different goroutines don't interleave.
type Stdio struct {
	stdin            io.Reader
	cancellableStdin cancelreader.CancelReader

	mu     sync.Mutex
	stdout io.Writer
}

// NewStdio wraps stdin and stdout, with nil selecting os.Stdin and
// os.Stdout. Reads are cancelable if the platform supports it for stdin.
func NewStdio(stdin io.Reader, stdout io.Writer) *Stdio {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	out := Stdio{
		stdin:  stdin,
		stdout: stdout,
	}

	cancellableStdin, err := cancelreader.NewReader(stdin)
	if err != nil {
		return &out
	}

	out.cancellableStdin = cancellableStdin
	return &out
}

// Read reads from stdin, using the cancelable reader if available.
func (s *Stdio) Read(p []byte) (n int, err error) {
	if s.cancellableStdin != nil {
		return s.cancellableStdin.Read(p)
	}

	return s.stdin.Read(p)
}

// Write writes to stdout.
func (s *Stdio) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.Write(p)
}

// Close cancels any pending reads from stdin if using a cancelable reader.
func (s *Stdio) Close() error {
	if s.cancellableStdin != nil {
		s.cancellableStdin.Cancel()
	}
	return nil
}

// IsTerminal reports whether stdin is an interactive terminal, in which
// case the CLI shows a prompt.
func (s *Stdio) IsTerminal() bool {
	f, ok := s.stdin.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
