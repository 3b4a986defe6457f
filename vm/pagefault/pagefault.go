// Package pagefault implements the TLB and the fault handler that fills it
// on every TLB miss: derive the faulting virtual page, call
// AddressSpace.LoadPage if the page is not resident (never loaded or
// evicted to swap), then install the
// translation at the next FIFO ring slot.
package pagefault

import (
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/addrspace"
)

// TLBSize is the number of resident translation entries.
const TLBSize = 4

// tlbEntry is a cached virtual-to-physical translation.
type tlbEntry struct {
	valid   bool
	vpn     uint64
	entry   addrspace.PageTableEntry
}

// TLB is a small fully-associative translation cache with FIFO refill,
// shared by whichever process is currently running; a context switch
// invalidates it wholesale.
type TLB struct {
	entries [TLBSize]tlbEntry
	next    int // next FIFO ring slot to fill
}

// NewTLB creates an empty TLB.
func NewTLB() *TLB {
	return &TLB{}
}

// Lookup returns the cached translation for vpn, if resident.
func (tlb *TLB) Lookup(vpn uint64) (addrspace.PageTableEntry, bool) {
	for _, e := range tlb.entries {
		if e.valid && e.vpn == vpn {
			return e.entry, true
		}
	}
	return addrspace.PageTableEntry{}, false
}

// Fill installs vpn's entry at the next FIFO slot, evicting whatever was
// there.
func (tlb *TLB) Fill(vpn uint64, entry addrspace.PageTableEntry) {
	tlb.entries[tlb.next] = tlbEntry{valid: true, vpn: vpn, entry: entry}
	tlb.next = (tlb.next + 1) % TLBSize
}

// Invalidate drops any cached translation for vpn, used when a page is
// evicted out from under a running process.
func (tlb *TLB) Invalidate(vpn uint64) {
	for i := range tlb.entries {
		if tlb.entries[i].valid && tlb.entries[i].vpn == vpn {
			tlb.entries[i] = tlbEntry{}
		}
	}
}

// InvalidateAll clears the whole TLB, satisfying addrspace.TLBInvalidator
// for a context switch.
func (tlb *TLB) InvalidateAll() {
	*tlb = TLB{}
}

// Stats counts page-fault-handler events.
type Stats struct {
	TLBMisses uint64
}

// Handler ties a TLB to the address space it currently serves.
type Handler struct {
	TLB   *TLB
	Stats *Stats
}

// New creates a fault handler with a fresh TLB and stats counter.
func New() *Handler {
	return &Handler{TLB: NewTLB(), Stats: &Stats{}}
}

// ErrReadOnlyViolation is returned by HandleFault when the faulting access
// was a write to a read-only page — fatal to the offending process.
var ErrReadOnlyViolation = readOnlyViolation{}

type readOnlyViolation struct{}

func (readOnlyViolation) Error() string { return "pagefault: write to a read-only page" }

// HandleFault services a TLB miss at vaddr for as, running as thread t. If
// the page is not resident (never loaded or evicted to swap), it loads it
// first. isWrite distinguishes
// a read-only trap from an ordinary miss. Returns an error (leaving the
// process to be torn down by the caller) if LoadPage failed with no frames
// and no swap available.
func (h *Handler) HandleFault(t *synch.Thread, as *addrspace.AddressSpace, vaddr uint64, isWrite bool) error {
	h.Stats.TLBMisses++
	vpn := vaddr / common.PageSize
	common.DPrintf(10, "pagefault: miss at vaddr 0x%x (vpn %d), isWrite=%v\n", vaddr, vpn, isWrite)

	pte := as.PageTableEntry(vpn)
	if pte.PhysicalPage < 0 {
		if !as.LoadPage(t, vpn) {
			return errOutOfFrames{}
		}
		pte = as.PageTableEntry(vpn)
	}

	if isWrite && pte.ReadOnly {
		return ErrReadOnlyViolation
	}

	h.TLB.Fill(vpn, pte)
	return nil
}

type errOutOfFrames struct{}

func (errOutOfFrames) Error() string { return "pagefault: out of frames, no swap available" }
