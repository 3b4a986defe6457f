package synch

import (
	"sync"

	"github.com/nachosfs/nachosfs/common"
)

// Lock is a mutual-exclusion lock built on a binary semaphore, with
// priority inheritance: a thread blocked on a lock donates its priority
// to the holder until the holder releases, bounding priority inversion.
type Lock struct {
	Name string

	sem *Semaphore

	mu     sync.Mutex
	holder *Thread
}

// NewLock creates an unheld lock.
func NewLock(name string) *Lock {
	return &Lock{Name: name, sem: NewSemaphore(1)}
}

// IsHeldBy reports whether t currently holds the lock.
func (l *Lock) IsHeldBy(t *Thread) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == t
}

// Acquire blocks until the lock is free, then takes it. If the lock is
// currently held by a lower-priority thread, the caller donates its
// priority to the holder for the duration of the wait.
func (l *Lock) Acquire(t *Thread) {
	l.mu.Lock()
	if l.holder == t {
		l.mu.Unlock()
		panic("Lock.Acquire: " + t.Name + " already holds " + l.Name)
	}
	if l.holder != nil && t.Priority() < l.holder.Priority() {
		common.DPrintf(10, "lock %s: %s donates priority %d to holder %s\n", l.Name, t.Name, t.Priority(), l.holder.Name)
		l.holder.donate(t.Priority())
	}
	l.mu.Unlock()

	l.sem.Acquire()

	l.mu.Lock()
	l.holder = t
	l.mu.Unlock()
}

// Release releases the lock, restoring the holder's original priority.
func (l *Lock) Release(t *Thread) {
	l.mu.Lock()
	if l.holder != t {
		l.mu.Unlock()
		panic("Lock.Release: " + t.Name + " does not hold " + l.Name)
	}
	l.holder = nil
	l.mu.Unlock()

	t.restore()
	l.sem.Release()
}
