package synch

import "sort"

// Cond is a condition variable bound to a single Lock. Wait atomically
// releases the lock and blocks; Signal/Broadcast require the lock to be
// held by the caller. Waiters are woken in priority order (lowest
// numerical priority first), not FIFO.
type Cond struct {
	L *Lock

	mu      chan struct{} // 1-buffered, used as a spinlock over waiters
	waiters []*condWaiter
}

type condWaiter struct {
	t  *Thread
	ch chan struct{}
}

// NewCond creates a condition variable bound to lock l.
func NewCond(l *Lock) *Cond {
	c := &Cond{L: l, mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}
	return c
}

func (c *Cond) lockWaiters() {
	<-c.mu
}

func (c *Cond) unlockWaiters() {
	c.mu <- struct{}{}
}

// Wait releases the bound lock, blocks the calling thread until Signal or
// Broadcast wakes it, then reacquires the lock before returning.
func (c *Cond) Wait(t *Thread) {
	w := &condWaiter{t: t, ch: make(chan struct{})}

	c.lockWaiters()
	c.waiters = append(c.waiters, w)
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].t.Priority() < c.waiters[j].t.Priority()
	})
	c.unlockWaiters()

	c.L.Release(t)
	<-w.ch
	c.L.Acquire(t)
}

// Signal wakes the highest-priority waiter, if any. The caller must hold
// the bound lock.
func (c *Cond) Signal(t *Thread) {
	if !c.L.IsHeldBy(t) {
		panic("Cond.Signal: lock not held")
	}
	c.lockWaiters()
	if len(c.waiters) == 0 {
		c.unlockWaiters()
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.unlockWaiters()
	close(w.ch)
}

// Broadcast wakes every waiter. The caller must hold the bound lock.
func (c *Cond) Broadcast(t *Thread) {
	if !c.L.IsHeldBy(t) {
		panic("Cond.Broadcast: lock not held")
	}
	c.lockWaiters()
	ws := c.waiters
	c.waiters = nil
	c.unlockWaiters()
	for _, w := range ws {
		close(w.ch)
	}
}
