package kernel

import (
	"os"
	"testing"

	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/coremap"
	"github.com/nachosfs/nachosfs/vm/loader"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "nachos-kernel-swap")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return Config{
		NumSectors:        512,
		NumFrames:         4,
		ReplacementPolicy: coremap.FIFO,
		SwapDir:           dir,
	}
}

func TestFormatThenCreateFile(t *testing.T) {
	k, err := Format(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	th := synch.NewThread("t", 10)
	if !k.FS.Create(th, "/hello", 0) {
		t.Fatal("expected Create to succeed on a freshly formatted filesystem")
	}
	if errs := k.FS.Check(th); len(errs) != 0 {
		t.Fatalf("expected a clean filesystem after Create, got %v", errs)
	}
}

func TestExecAssignsDistinctPids(t *testing.T) {
	k, err := Format(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	raw := loader.Encode(0, 0, 2, make([]byte, 8192), nil)

	p1, ok := k.Exec(raw)
	if !ok {
		t.Fatal("expected Exec to succeed")
	}
	p2, ok := k.Exec(raw)
	if !ok {
		t.Fatal("expected second Exec to succeed")
	}
	if p1 == p2 {
		t.Fatal("expected distinct pids")
	}
	ps := k.Ps()
	if len(ps) != 2 {
		t.Fatalf("expected 2 running processes, got %d", len(ps))
	}
}

func TestExitTearsDownAddressSpace(t *testing.T) {
	k, err := Format(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	th := synch.NewThread("t", 10)
	raw := loader.Encode(0, 0, 2, make([]byte, 8192), nil)
	pid, ok := k.Exec(raw)
	if !ok {
		t.Fatal("expected Exec to succeed")
	}
	as, _ := k.AddressSpace(pid)
	as.LoadPage(th, 0)

	k.Exit(th, pid)
	if _, ok := k.AddressSpace(pid); ok {
		t.Fatal("expected the address space to be gone after Exit")
	}
	if n := k.Coremap.CountClear(th); n != k.Coremap.NumFrames() {
		t.Fatal("expected Exit to release all frames held by the process")
	}
}
