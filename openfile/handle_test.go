package openfile

import (
	"bytes"
	"testing"

	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/bitmap"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/fsheader"
	"github.com/nachosfs/nachosfs/synch"
)

func newTestHandle(t *testing.T, size uint64) (*Handle, *bitmap.Bitmap, *bdev.Device) {
	t.Helper()
	dev := bdev.NewMemDevice(64)
	freeMap := bitmap.New(64)
	fmLock := synch.NewLock("free-map")
	hdr, ok := fsheader.Allocate(freeMap, size)
	if !ok {
		t.Fatal("setup allocation failed")
	}
	const headerSector common.Sector = 2
	dev.WriteSector(headerSector, hdr.Encode())
	owner := synch.NewThread("owner", 10)
	ctrl := newAccessController()
	h := NewHandle(owner, headerSector, hdr, dev, freeMap, fmLock, ctrl)
	return h, freeMap, dev
}

func TestWriteThenReadBack(t *testing.T) {
	h, _, _ := newTestHandle(t, common.SectorSize*2)
	data := bytes.Repeat([]byte{0xAB}, int(common.SectorSize*2))
	if n := h.WriteAt(data, uint64(len(data)), 0); n != uint64(len(data)) {
		t.Fatalf("expected full write, got %d", n)
	}
	out := make([]byte, len(data))
	if n := h.ReadAt(out, uint64(len(out)), 0); n != uint64(len(out)) {
		t.Fatalf("expected full read, got %d", n)
	}
	if !bytes.Equal(data, out) {
		t.Fatal("read back data does not match written data")
	}
}

func TestReadPastEndReturnsZero(t *testing.T) {
	h, _, _ := newTestHandle(t, 10)
	buf := make([]byte, 5)
	if n := h.ReadAt(buf, 5, 10); n != 0 {
		t.Fatalf("expected 0 bytes read at pos == length, got %d", n)
	}
	if n := h.ReadAt(buf, 5, 20); n != 0 {
		t.Fatalf("expected 0 bytes read at pos > length, got %d", n)
	}
}

func TestWritePastLengthIsNoOp(t *testing.T) {
	h, _, _ := newTestHandle(t, 10)
	buf := make([]byte, 5)
	if n := h.WriteAt(buf, 5, 11); n != 0 {
		t.Fatalf("expected no-op for pos > length, got %d bytes written", n)
	}
	if h.Length() != 10 {
		t.Fatalf("expected length unchanged, got %d", h.Length())
	}
}

func TestWriteAtLengthExtendsFile(t *testing.T) {
	h, _, _ := newTestHandle(t, 10)
	extra := []byte("hello")
	if n := h.WriteAt(extra, uint64(len(extra)), 10); n != uint64(len(extra)) {
		t.Fatalf("expected append to succeed, got %d", n)
	}
	if h.Length() != 15 {
		t.Fatalf("expected length 15 after append, got %d", h.Length())
	}
	out := make([]byte, len(extra))
	h.ReadAt(out, uint64(len(out)), 10)
	if string(out) != "hello" {
		t.Fatalf("expected appended bytes to read back as %q, got %q", "hello", out)
	}
}

func TestPartialSectorWritePreservesNeighboringBytes(t *testing.T) {
	h, _, _ := newTestHandle(t, common.SectorSize)
	full := bytes.Repeat([]byte{0x11}, int(common.SectorSize))
	h.WriteAt(full, uint64(len(full)), 0)

	patch := []byte{0x22, 0x22}
	h.WriteAt(patch, 2, 4)

	out := make([]byte, common.SectorSize)
	h.ReadAt(out, uint64(len(out)), 0)
	if out[3] != 0x11 || out[6] != 0x11 {
		t.Fatal("partial write corrupted neighboring bytes")
	}
	if out[4] != 0x22 || out[5] != 0x22 {
		t.Fatal("partial write did not land at the requested offset")
	}
}

func TestWriteCrossingSectorBoundary(t *testing.T) {
	h, _, _ := newTestHandle(t, common.SectorSize*2)
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	pos := common.SectorSize - 5
	h.WriteAt(data, uint64(len(data)), pos)

	out := make([]byte, len(data))
	h.ReadAt(out, uint64(len(out)), pos)
	if !bytes.Equal(data, out) {
		t.Fatal("write crossing a sector boundary did not round trip")
	}
}
