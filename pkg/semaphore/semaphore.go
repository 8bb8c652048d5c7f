// Package semaphore limits how many connections a server holds at once.
package semaphore

import (
	"net"
	"sync"
)

// ConnSemaphore hands out a fixed number of connection slots.
// A nil *ConnSemaphore is unlimited.
type ConnSemaphore struct {
	sem chan struct{}
}

// New creates a semaphore with n free slots.
func New(n int) *ConnSemaphore {
	sem := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		sem <- struct{}{}
	}
	return &ConnSemaphore{sem: sem}
}

// TryAcquire takes a slot if one is free. It never blocks.
func (s *ConnSemaphore) TryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case <-s.sem:
		return true
	default:
		return false
	}
}

// Release returns a slot.
func (s *ConnSemaphore) Release() {
	if s == nil {
		return
	}
	s.sem <- struct{}{}
}

// Available returns the number of free slots, or -1 if unlimited.
func (s *ConnSemaphore) Available() int {
	if s == nil {
		return -1
	}
	return len(s.sem)
}

// Guard ties an acquired slot to conn: the slot is released the first time
// the returned conn is closed.
func (s *ConnSemaphore) Guard(conn net.Conn) net.Conn {
	if s == nil {
		return conn
	}
	return &guardedConn{Conn: conn, release: s.Release}
}

type guardedConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *guardedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}
