// Package addrspace implements a per-process address space: a page table,
// demand loading from a synthetic executable, and eviction to a
// per-process swap file. No frames are allocated at construction time;
// LoadPage allocates (or evicts to make room for) a frame the first time a
// given virtual page is touched.
package addrspace

import (
	"fmt"
	"os"
	"sync"

	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/coremap"
	"github.com/nachosfs/nachosfs/vm/loader"
)

// PageTableEntry is one virtual page's current mapping state.
type PageTableEntry struct {
	PhysicalPage int64 // -1: never loaded. -2: evicted to swap.
	ReadOnly     bool
	Use          bool
	Dirty        bool
	Valid        bool
}

const (
	NeverLoaded int64 = -1
	InSwap      int64 = -2
)

// Memory is the physical frame store LoadPage reads/writes into and out
// of: fixed-size byte slices addressed by frame number, shared by every
// address space via the coremap's allocation.
type Memory struct {
	mu     sync.Mutex
	frames [][]byte
}

// NewMemory creates a physical memory of numFrames page-sized frames.
func NewMemory(numFrames uint64) *Memory {
	frames := make([][]byte, numFrames)
	for i := range frames {
		frames[i] = make([]byte, common.PageSize)
	}
	return &Memory{frames: frames}
}

func (m *Memory) Frame(f uint64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames[f]
}

// AddressSpace is one process's virtual memory state.
type AddressSpace struct {
	pid      common.Pid
	exec     *loader.Executable
	pageTable []PageTableEntry
	numPages uint64

	mem    *Memory
	cm     *coremap.Coremap
	policy coremap.Policy

	swap     *bdev.Device
	swapPath string

	fullMemory bool
}

// Pid satisfies coremap.Owner.
func (as *AddressSpace) Pid() common.Pid { return as.pid }

// New constructs an address space over exe for process pid: computes
// numPages from the executable's declared size plus the user stack, and
// creates (but does not yet populate) the per-process swap file.
func New(pid common.Pid, exe *loader.Executable, mem *Memory, cm *coremap.Coremap, policy coremap.Policy, swapDir string) (*AddressSpace, error) {
	numPages := exe.NumPages + common.UserStackSize/common.PageSize
	swapPath := fmt.Sprintf("%s/SWAP.%d", swapDir, pid)
	swap, err := bdev.NewFileDevice(swapPath, numPages)
	if err != nil {
		return nil, err
	}

	pt := make([]PageTableEntry, numPages)
	for i := range pt {
		pt[i] = PageTableEntry{PhysicalPage: NeverLoaded, Valid: true}
	}

	return &AddressSpace{
		pid:       pid,
		exec:      exe,
		pageTable: pt,
		numPages:  numPages,
		mem:       mem,
		cm:        cm,
		policy:    policy,
		swap:      swap,
		swapPath:  swapPath,
	}, nil
}

// NumPages returns the number of virtual pages in this address space.
func (as *AddressSpace) NumPages() uint64 { return as.numPages }

// PageTableEntry returns a copy of the current entry for vpn.
func (as *AddressSpace) PageTableEntry(vpn uint64) PageTableEntry {
	return as.pageTable[vpn]
}

// FullMemory reports whether a prior LoadPage hit out-of-frames with no
// victim available to evict.
func (as *AddressSpace) FullMemory() bool { return as.fullMemory }

// withinCode/withinData report whether addr lies in the code or the
// initialized-data segment; each segment's end bound is exclusive.
func (as *AddressSpace) withinCode(addr uint64) bool {
	return as.exec.CodeSize > 0 && addr >= as.exec.CodeAddr && addr < as.exec.CodeAddr+as.exec.CodeSize
}

func (as *AddressSpace) withinData(addr uint64) bool {
	return as.exec.InitDataSize > 0 && addr >= as.exec.InitDataAddr && addr < as.exec.InitDataAddr+as.exec.InitDataSize
}

// LoadPage brings virtual page vpn into physical memory, evicting a
// victim frame by policy if none are free: find or evict a frame, write
// the victim's contents to its owner's swap file if the owner's page table
// still maps that page to the frame, then populate
// the frame with vpn's contents and install the page table entry.
func (as *AddressSpace) LoadPage(t *synch.Thread, vpn uint64) bool {
	as.cm.Lock().Acquire(t)
	frame, ok := as.cm.Find(as, vpn)
	if !ok {
		victim, ok := as.cm.Victim(as.policy)
		if !ok {
			as.cm.Lock().Release(t)
			as.fullMemory = true
			return false
		}
		victimOwner, victimVpn, _ := as.cm.Owner(victim)
		as.cm.SetLoading(victim, as, vpn, true)
		as.cm.Lock().Release(t)

		if victimAS, ok := victimOwner.(*AddressSpace); ok {
			if victimAS.pageTable[victimVpn].PhysicalPage == int64(victim) {
				victimAS.storePageInSwap(victimVpn, victim)
			}
		}

		as.cm.Lock().Acquire(t)
		as.cm.SetLoading(victim, as, vpn, false)
		as.cm.Lock().Release(t)
		frame = victim
	} else {
		as.cm.Lock().Release(t)
	}

	as.populateFrame(frame, vpn)

	readOnly := as.withinCode(vpn*common.PageSize) && !as.withinData(vpn*common.PageSize)
	as.pageTable[vpn] = PageTableEntry{
		PhysicalPage: int64(frame),
		ReadOnly:     readOnly,
		Use:          true,
		Dirty:        true,
		Valid:        true,
	}
	return true
}

// storePageInSwap writes frame's contents to this process's swap file at
// vpn's slot and marks the page table entry evicted.
func (as *AddressSpace) storePageInSwap(vpn uint64, frame uint64) {
	common.DPrintf(10, "addrspace %d: evicting vpn %d (frame %d) to swap\n", as.pid, vpn, frame)
	data := as.mem.Frame(frame)
	as.swap.WriteSector(vpn, data)
	as.pageTable[vpn].PhysicalPage = InSwap
}

// populateFrame fills frame with vpn's initial contents: from the
// executable's segments if never loaded before, or from swap if
// previously evicted.
func (as *AddressSpace) populateFrame(frame uint64, vpn uint64) {
	dst := as.mem.Frame(frame)
	prior := as.pageTable[vpn].PhysicalPage

	if prior == InSwap {
		copy(dst, as.swap.ReadSector(vpn))
		return
	}

	for i := range dst {
		dst[i] = 0
	}
	pageStart := vpn * common.PageSize
	pageEnd := pageStart + common.PageSize

	if as.exec.CodeSize > 0 {
		start, end := overlap(pageStart, pageEnd, as.exec.CodeAddr, as.exec.CodeAddr+as.exec.CodeSize)
		if start < end {
			as.exec.ReadCode(dst[start-pageStart:end-pageStart], start-as.exec.CodeAddr, end-start)
		}
	}
	if as.exec.InitDataSize > 0 {
		start, end := overlap(pageStart, pageEnd, as.exec.InitDataAddr, as.exec.InitDataAddr+as.exec.InitDataSize)
		if start < end {
			as.exec.ReadData(dst[start-pageStart:end-pageStart], start-as.exec.InitDataAddr, end-start)
		}
	}
}

func overlap(aStart, aEnd, bStart, bEnd uint64) (uint64, uint64) {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if start > end {
		return start, start
	}
	return start, end
}

// TLBInvalidator is the minimal interface RestoreState needs; satisfied by
// vm/pagefault.TLB. Declared locally to avoid an import cycle, the same
// pattern bitmap.SectorFile and directory's sectorFile use.
type TLBInvalidator interface {
	InvalidateAll()
}

// InitRegisters reports the initial program counter (0) and stack
// pointer: the stack pointer is set to the top of the address space, minus
// a small guard.
func (as *AddressSpace) InitRegisters() (pc uint64, sp uint64) {
	return 0, as.numPages*common.PageSize - 16
}

// SaveState is a no-op placeholder for symmetry with RestoreState, since
// there is no real machine register file to snapshot here.
func (as *AddressSpace) SaveState() {}

// RestoreState installs this address space on a context switch in: when
// the TLB is in use, every entry is invalidated and the fault handler
// refills it lazily on demand.
func (as *AddressSpace) RestoreState(tlb TLBInvalidator) {
	if tlb != nil {
		tlb.InvalidateAll()
	}
}

// Destroy releases every frame this address space still owns and deletes
// its swap file.
func (as *AddressSpace) Destroy(t *synch.Thread) {
	as.cm.Lock().Acquire(t)
	for vpn := range as.pageTable {
		if as.pageTable[vpn].PhysicalPage >= 0 {
			as.cm.Clear(uint64(as.pageTable[vpn].PhysicalPage))
		}
	}
	as.cm.Lock().Release(t)
	as.swap.Close()
	os.Remove(as.swapPath)
	common.DPrintf(10, "addrspace %d: destroyed, swap file %s removed\n", as.pid, as.swapPath)
}
