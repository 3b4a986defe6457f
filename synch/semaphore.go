package synch

import "sync"

// Semaphore is a non-negative counter with FIFO-ordered waiters, the
// lowest-level primitive everything else in this package is built from.
// A real kernel achieves atomicity by masking interrupts; a goroutine
// achieves the same effect by holding mu for the duration of the
// critical section.
type Semaphore struct {
	mu      sync.Mutex
	value   int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(value int) *Semaphore {
	if value < 0 {
		panic("Semaphore: negative initial value")
	}
	return &Semaphore{value: value}
}

// Acquire blocks while the counter is zero, then decrements it.
func (s *Semaphore) Acquire() {
	s.mu.Lock()
	if s.value > 0 {
		s.value--
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	<-ch
}

// Release increments the counter and wakes the longest-waiting blocked
// acquirer, if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) == 0 {
		s.value++
		s.mu.Unlock()
		return
	}
	ch := s.waiters[0]
	s.waiters = s.waiters[1:]
	s.mu.Unlock()
	close(ch)
}

// Value returns a snapshot of the counter, for tests and diagnostics only.
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
