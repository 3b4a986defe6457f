// Package coremap implements the physical frame allocator shared by every
// address space, plus three selectable page-replacement policies: Random
// (uniform over all non-loading frames), FIFO (evict in load order), and
// Enhanced Clock (rotating pointer, two-pass use/dirty scan). A bitmap of
// claimed frames sits alongside a parallel per-frame record of the owning
// address space, virtual page, and use/dirty bits.
package coremap

import (
	"math/rand"

	"github.com/nachosfs/nachosfs/bitmap"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
)

// Owner identifies the process an address-space implementation runs as,
// kept abstract here to avoid an import cycle with the vm/addrspace
// package that owns frames.
type Owner interface {
	Pid() common.Pid
}

// Policy selects how Victim picks a frame to evict when the coremap is
// full.
type Policy int

const (
	Random Policy = iota
	FIFO
	Clock
)

// entry is one frame's reverse-mapping record.
type entry struct {
	owner   Owner
	vpn     uint64
	loading bool
	use     bool
	dirty   bool
}

// Coremap is the process-wide frame allocator.
type Coremap struct {
	lock    *synch.Lock
	bits    *bitmap.Bitmap
	entries []entry

	loadOrder []uint64 // FIFO: frame indices in claim order
	clockHand uint64   // Clock: next frame to examine
}

// New creates a coremap managing numFrames physical frames, all initially
// free.
func New(numFrames uint64) *Coremap {
	return &Coremap{
		lock:    synch.NewLock("coremap"),
		bits:    bitmap.New(numFrames),
		entries: make([]entry, numFrames),
	}
}

// NumFrames returns the total number of physical frames managed.
func (c *Coremap) NumFrames() uint64 {
	return c.bits.NumBits()
}

// Find atomically claims a free frame and records it as owned by (owner,
// vpn) with loading=false, returning its index, or (0, false) if none are
// free. Callers already hold c.Lock().
func (c *Coremap) Find(owner Owner, vpn uint64) (uint64, bool) {
	f, ok := c.bits.Find()
	if !ok {
		return 0, false
	}
	c.entries[f] = entry{owner: owner, vpn: vpn, use: true, dirty: true}
	c.loadOrder = append(c.loadOrder, f)
	return f, true
}

// Clear releases frame, making it available for reuse. Callers already
// hold c.Lock().
func (c *Coremap) Clear(frame uint64) {
	c.bits.Clear(frame)
	c.entries[frame] = entry{}
	for i, f := range c.loadOrder {
		if f == frame {
			c.loadOrder = append(c.loadOrder[:i], c.loadOrder[i+1:]...)
			break
		}
	}
}

// CountClear returns the number of currently free frames.
func (c *Coremap) CountClear(t *synch.Thread) uint64 {
	c.lock.Acquire(t)
	defer c.lock.Release(t)
	return c.bits.CountClear()
}

// Lock exposes the coremap's own lock so LoadPage (vm/addrspace) can hold
// it across the multi-step victim-selection protocol, the same way the
// free-map lock is held across a staged allocation.
func (c *Coremap) Lock() *synch.Lock {
	return c.lock
}

// Owner reports the current owner and virtual page of frame, and whether
// it is mid-eviction.
func (c *Coremap) Owner(frame uint64) (owner Owner, vpn uint64, loading bool) {
	e := c.entries[frame]
	return e.owner, e.vpn, e.loading
}

// SetLoading marks frame mid-eviction (true) or settles it with a final
// owner/vpn (loading=false).
func (c *Coremap) SetLoading(frame uint64, owner Owner, vpn uint64, loading bool) {
	c.entries[frame].owner = owner
	c.entries[frame].vpn = vpn
	c.entries[frame].loading = loading
	if !loading {
		c.entries[frame].use = true
		c.entries[frame].dirty = true
	}
}

// IsFree reports whether frame is currently unclaimed.
func (c *Coremap) IsFree(frame uint64) bool {
	return !c.bits.Test(frame)
}

// MarkUse sets a frame's reference bit and SetDirty sets its dirty bit, for
// whichever layer observes accesses; no caller in this module invokes them
// (Find and SetLoading set both bits when a frame is claimed or settled).
// Enhanced Clock consults and clears the reference bit as it rotates.
func (c *Coremap) MarkUse(frame uint64) {
	c.entries[frame].use = true
}

func (c *Coremap) SetDirty(frame uint64, dirty bool) {
	c.entries[frame].dirty = dirty
}

// Victim selects a frame to evict under the given policy. Frames
// currently mid-eviction (loading) are never selected. Callers hold
// c.Lock().
func (c *Coremap) Victim(policy Policy) (uint64, bool) {
	switch policy {
	case FIFO:
		return c.victimFIFO()
	case Clock:
		return c.victimClock()
	default:
		return c.victimRandom()
	}
}

func (c *Coremap) victimRandom() (uint64, bool) {
	candidates := c.candidates()
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

func (c *Coremap) victimFIFO() (uint64, bool) {
	for i, f := range c.loadOrder {
		if !c.entries[f].loading {
			c.loadOrder = append(c.loadOrder[:i], c.loadOrder[i+1:]...)
			c.loadOrder = append(c.loadOrder, f)
			common.DPrintf(10, "coremap: FIFO evicting frame %d\n", f)
			return f, true
		}
	}
	return 0, false
}

// victimClock implements the enhanced-clock two-pass scan: pass one picks
// the first (use=false, dirty=false) frame; pass two, run only if pass one
// finds nothing, picks the first (use=false, dirty=true) frame while
// clearing use bits along the way. Two full revolutions always terminate
// it, since every use bit is cleared by the end of the first full sweep of
// pass two.
func (c *Coremap) victimClock() (uint64, bool) {
	n := c.bits.NumBits()
	if n == 0 {
		return 0, false
	}
	for pass := 0; pass < 2; pass++ {
		for i := uint64(0); i < 2*n; i++ {
			f := c.clockHand
			c.clockHand = (c.clockHand + 1) % n
			if c.bits.Test(f) && !c.entries[f].loading {
				e := &c.entries[f]
				if !e.use && (pass == 1 || !e.dirty) {
					common.DPrintf(10, "coremap: clock evicting frame %d (pass %d)\n", f, pass)
					return f, true
				}
				if pass == 1 {
					e.use = false
				}
			}
		}
	}
	return c.victimFIFO()
}

func (c *Coremap) candidates() []uint64 {
	var out []uint64
	for f := uint64(0); f < c.bits.NumBits(); f++ {
		if c.bits.Test(f) && !c.entries[f].loading {
			out = append(out, f)
		}
	}
	return out
}
