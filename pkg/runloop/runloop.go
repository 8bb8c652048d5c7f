// Package runloop provides a cooperative, single-goroutine task loop.
//
// Stream goroutines never touch connection state directly. They post events
// to a Loop, which runs them one after the other in posting order. Posting
// never blocks, so a slow observer can delay event handling but not the
// producers.
package runloop

import (
	"sync"
)

// Loop runs posted tasks sequentially on its own goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	once    sync.Once
	exited  chan struct{}
}

// New creates and starts a loop.
func New() *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post schedules fn. It reports false if the loop is stopped, in which case
// fn never runs.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop ends the loop. Tasks still queued are dropped; a task that is
// currently running completes. Stop is idempotent and safe to call from a
// task.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
}

// Stopped reports whether Stop was called.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.exited
}

// Sync waits until every task posted before the call has run. It returns
// false if the loop stopped first. Sync must not be called from a task.
func (l *Loop) Sync() bool {
	ran := make(chan struct{})
	if !l.Post(func() { close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) run() {
	defer close(l.exited)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
