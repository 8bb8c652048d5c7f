package semaphore

import (
	"net"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	sem := New(5)
	if sem == nil {
		t.Fatal("New() returned nil")
	}
	if cap(sem.sem) != 5 {
		t.Errorf("capacity = %d; want 5", cap(sem.sem))
	}
	if sem.Available() != 5 {
		t.Errorf("Available() = %d; want 5", sem.Available())
	}
}

func TestTryAcquireRelease(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		capacity int
	}{
		{"capacity-0", 0},
		{"capacity-1", 1},
		{"capacity-5", 5},
		{"capacity-100", 100},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sem := New(tc.capacity)

			for i := 0; i < tc.capacity; i++ {
				if !sem.TryAcquire() {
					t.Fatalf("TryAcquire() %d = false", i)
				}
			}
			if sem.TryAcquire() {
				t.Error("TryAcquire() on an exhausted semaphore = true")
			}

			for i := 0; i < tc.capacity; i++ {
				sem.Release()
			}
			if sem.Available() != tc.capacity {
				t.Errorf("after releasing all slots, Available() = %d; want %d", sem.Available(), tc.capacity)
			}
		})
	}
}

func TestNilSemaphore(t *testing.T) {
	t.Parallel()

	var sem *ConnSemaphore
	for i := 0; i < 3; i++ {
		if !sem.TryAcquire() {
			t.Fatal("TryAcquire() on nil semaphore = false")
		}
	}
	sem.Release()
	if sem.Available() != -1 {
		t.Errorf("Available() = %d; want -1", sem.Available())
	}

	a, b := net.Pipe()
	defer b.Close()
	if got := sem.Guard(a); got != a {
		t.Error("Guard() on nil semaphore wrapped the conn")
	}
	a.Close()
}

func TestGuard(t *testing.T) {
	t.Parallel()

	sem := New(1)
	if !sem.TryAcquire() {
		t.Fatal("TryAcquire() = false")
	}

	a, b := net.Pipe()
	defer b.Close()
	conn := sem.Guard(a)

	if sem.Available() != 0 {
		t.Fatalf("Available() = %d before Close; want 0", sem.Available())
	}

	_ = conn.Close()
	_ = conn.Close()
	if sem.Available() != 1 {
		t.Errorf("Available() = %d after Close; want 1", sem.Available())
	}
}

func TestConcurrentTryAcquireRelease(t *testing.T) {
	t.Parallel()

	const (
		capacity   = 10
		goroutines = 100
		iterations = 50
	)

	sem := New(capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	held, maxHeld := 0, 0

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if !sem.TryAcquire() {
					continue
				}
				mu.Lock()
				held++
				maxHeld = max(maxHeld, held)
				mu.Unlock()

				mu.Lock()
				held--
				mu.Unlock()
				sem.Release()
			}
		}()
	}

	wg.Wait()

	if maxHeld > capacity {
		t.Errorf("%d slots held at once; want at most %d", maxHeld, capacity)
	}
	if sem.Available() != capacity {
		t.Errorf("final Available() = %d; want %d", sem.Available(), capacity)
	}
}
