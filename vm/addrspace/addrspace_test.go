package addrspace

import (
	"bytes"
	"os"
	"testing"

	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/coremap"
	"github.com/nachosfs/nachosfs/vm/loader"
)

func tmpSwapDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "nachos-swap")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func makeExec(t *testing.T, codePages int) *loader.Executable {
	t.Helper()
	code := bytes.Repeat([]byte{0x90}, codePages*int(common.PageSize))
	raw := loader.Encode(0, 0, uint64(codePages), code, nil)
	exe, err := loader.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return exe
}

// TestDemandLoadingWithFIFOEviction touches more pages than there are
// frames under the FIFO policy, forcing an eviction, and checks that the
// evicted page's contents survive a swap-out/swap-in round trip.
func TestDemandLoadingWithFIFOEviction(t *testing.T) {
	exe := makeExec(t, 8)
	mem := NewMemory(4)
	cm := coremap.New(4)
	th := synch.NewThread("t", 10)

	as, err := New(1, exe, mem, cm, coremap.FIFO, tmpSwapDir(t))
	if err != nil {
		t.Fatal(err)
	}

	for vpn := uint64(0); vpn < 4; vpn++ {
		if !as.LoadPage(th, vpn) {
			t.Fatalf("expected page %d to load into a free frame", vpn)
		}
	}
	if n := cm.CountClear(th); n != 0 {
		t.Fatalf("expected all 4 frames in use, %d still free", n)
	}

	firstFrame := as.pageTable[0].PhysicalPage
	if !as.LoadPage(th, 4) {
		t.Fatal("expected the 5th fault to evict a frame and succeed")
	}
	if as.pageTable[0].PhysicalPage >= 0 {
		t.Fatal("expected page 0 (first loaded) to have been evicted by FIFO")
	}
	if as.pageTable[4].PhysicalPage != firstFrame {
		t.Fatalf("expected page 4 to reuse the evicted frame %d, got %d", firstFrame, as.pageTable[4].PhysicalPage)
	}

	if !as.LoadPage(th, 0) {
		t.Fatal("expected faulting page 0 back in to succeed")
	}
	frame := as.pageTable[0].PhysicalPage
	data := mem.Frame(uint64(frame))
	for _, b := range data {
		if b != 0x90 {
			t.Fatal("expected evicted code page to read back with its original contents")
		}
	}
}

func TestLoadPageMarksReadOnlyWithinCodeSegment(t *testing.T) {
	exe := makeExec(t, 2)
	mem := NewMemory(4)
	cm := coremap.New(4)
	th := synch.NewThread("t", 10)
	as, _ := New(2, exe, mem, cm, coremap.Random, tmpSwapDir(t))

	as.LoadPage(th, 0)
	if !as.pageTable[0].ReadOnly {
		t.Fatal("expected a page entirely within the code segment to be read-only")
	}
}

func TestSingleFrameEvictsOwnPage(t *testing.T) {
	exe := makeExec(t, 4)
	mem := NewMemory(1)
	cm := coremap.New(1)
	th := synch.NewThread("t", 10)
	as, _ := New(3, exe, mem, cm, coremap.Random, tmpSwapDir(t))

	as.LoadPage(th, 0)
	// The single frame is owned by as itself and not loading, so a
	// second process should be able to evict it; here we exercise the
	// same process faulting a second page, which must evict its own
	// page 0 rather than fail, since eviction targets any non-loading
	// frame regardless of owner.
	if !as.LoadPage(th, 1) {
		t.Fatal("expected eviction of the process's own frame 0 to succeed")
	}
}
