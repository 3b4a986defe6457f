package synch

// Channel is an unbuffered rendezvous: Send blocks until a paired Receive
// has copied the value, Receive blocks until a value is available.
// Implemented with a lock, two condition variables, and a single-item
// staging slot, built directly from Lock/Cond rather than Go's built-in
// chan.
type Channel struct {
	lock *Lock
	full *Cond // signaled when a value becomes available
	empty *Cond // signaled when the slot is freed by a receiver

	hasValue bool
	value    interface{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	l := NewLock("channel")
	return &Channel{
		lock:  l,
		full:  NewCond(l),
		empty: NewCond(l),
	}
}

// Send stages v and blocks until some Receive has taken it.
func (c *Channel) Send(t *Thread, v interface{}) {
	c.lock.Acquire(t)
	for c.hasValue {
		c.empty.Wait(t)
	}
	c.value = v
	c.hasValue = true
	c.full.Signal(t)
	for c.hasValue {
		c.empty.Wait(t)
	}
	c.lock.Release(t)
}

// Receive blocks until a value is staged, then returns it.
func (c *Channel) Receive(t *Thread) interface{} {
	c.lock.Acquire(t)
	for !c.hasValue {
		c.full.Wait(t)
	}
	v := c.value
	c.value = nil
	c.hasValue = false
	c.empty.Signal(t)
	c.lock.Release(t)
	return v
}
