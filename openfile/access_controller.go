package openfile

import "github.com/nachosfs/nachosfs/synch"

// AccessController is a per-file readers/writer coordinator: readers
// increment a counter under a lock; the last reader leaving signals a "no
// readers" condition; a writer holds the lock for its entire write,
// waiting on that condition while readers > 0. Writers are not preferred:
// the wait releases the lock, so readers arriving while a writer waits
// are admitted ahead of it.
type AccessController struct {
	lock       *synch.Lock
	noReaders  *synch.Cond
	readers    int
	writer     *synch.Thread // non-nil while a writer holds the controller
	writeDepth int           // BeginWrite calls nested by writer, for reentrant EndWrite
}

func newAccessController() *AccessController {
	l := synch.NewLock("access-controller")
	return &AccessController{
		lock:      l,
		noReaders: synch.NewCond(l),
	}
}

// BeginRead registers a reader. Multiple readers proceed concurrently;
// BeginRead blocks only while a writer holds the controller, since a
// writer holds the underlying lock for its entire write (see BeginWrite).
// A thread that already holds the controller as a writer is a reentrant
// self-recursion (e.g. a write that reads back what it just wrote) rather
// than a real contention case, so it is a no-op instead of deadlocking
// against its own held lock.
func (ac *AccessController) BeginRead(t *synch.Thread) {
	if ac.lock.IsHeldBy(t) {
		return
	}
	ac.lock.Acquire(t)
	ac.readers++
	ac.lock.Release(t)
}

// EndRead unregisters a reader, signaling the writer that may be waiting
// for the last reader to leave. A no-op counterpart to a reentrant
// BeginRead that never actually registered.
func (ac *AccessController) EndRead(t *synch.Thread) {
	if ac.lock.IsHeldBy(t) {
		return
	}
	ac.lock.Acquire(t)
	ac.readers--
	if ac.readers == 0 {
		ac.noReaders.Signal(t)
	}
	ac.lock.Release(t)
}

// BeginWrite acquires the controller exclusively: it holds the underlying
// lock for the duration of the write, waiting for any in-flight readers to
// finish first. A thread that already holds the controller (reentrant
// self-recursion, the same thread calling BeginWrite twice without an
// intervening EndWrite) is a no-op rather than deadlocking against its own
// held lock.
func (ac *AccessController) BeginWrite(t *synch.Thread) {
	if ac.lock.IsHeldBy(t) {
		ac.writeDepth++
		return
	}
	ac.lock.Acquire(t)
	for ac.readers > 0 {
		ac.noReaders.Wait(t)
	}
	ac.writer = t
	ac.writeDepth = 1
}

// EndWrite releases the controller after a write, only actually releasing
// once every nested BeginWrite has a matching EndWrite.
func (ac *AccessController) EndWrite(t *synch.Thread) {
	if ac.writer != t {
		panic("openfile: EndWrite: caller is not the current writer")
	}
	ac.writeDepth--
	if ac.writeDepth > 0 {
		return
	}
	ac.writer = nil
	ac.lock.Release(t)
}

// Readers returns the current reader count. Unsynchronized: intended for
// tests that serialize access themselves.
func (ac *AccessController) Readers() int {
	return ac.readers
}
