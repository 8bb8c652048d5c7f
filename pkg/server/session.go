package server

import (
	"net"
	"sync"

	"dominicbreuker/msgsock/pkg/mux"
)

// session tracks the streams of one multiplexed socket that were handed
// over. Once draining, the session accepts no new streams and closes
// itself when the last handed-over stream is closed.
type session struct {
	*mux.Session

	mu       sync.Mutex
	live     int
	draining bool
	closed   bool
}

func newSession(s *mux.Session) *session {
	return &session{Session: s}
}

// track wraps stream so that closing it is counted. It returns false, and
// leaves stream alone, if the session is draining.
func (s *session) track(stream net.Conn) (net.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return nil, false
	}
	s.live++
	return &trackedStream{Conn: stream, sess: s}, true
}

// drain stops the session from taking new streams. The session is closed
// right away if no handed-over stream is open.
func (s *session) drain() {
	s.mu.Lock()
	s.draining = true
	idle := s.live == 0
	s.mu.Unlock()

	if idle {
		s.close()
	}
}

func (s *session) release() {
	s.mu.Lock()
	s.live--
	idle := s.draining && s.live == 0
	s.mu.Unlock()

	if idle {
		s.close()
	}
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.Session.Close()
}

type trackedStream struct {
	net.Conn
	sess *session
	once sync.Once
}

func (t *trackedStream) Close() error {
	err := t.Conn.Close()
	t.once.Do(t.sess.release)
	return err
}
