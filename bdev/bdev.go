// Package bdev is the thin sector-addressable disk layer the rest of the
// kernel calls into. It carries no read cache of its own — every sector is
// read through to the underlying device; caching physical pages is the
// coremap's job, one layer up, not this package's.
package bdev

import (
	"sync"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/nachosfs/nachosfs/common"
)

// Device is a sector-addressable disk. All I/O is serialized through a
// single mutex, so callers never need to coordinate disk access themselves.
type Device struct {
	mu    sync.Mutex
	d     disk.Disk
	stats *opStats // nil unless EnableStats was called
}

// NewMemDevice creates an in-memory disk of numSectors sectors, for tests
// and ephemeral filesystems.
func NewMemDevice(numSectors uint64) *Device {
	return &Device{d: disk.NewMemDisk(numSectors)}
}

// NewFileDevice opens (creating if necessary) a disk image backed by a
// host file, used both for the main filesystem disk and for each
// process's SWAP.<pid> file.
func NewFileDevice(path string, numSectors uint64) (*Device, error) {
	d, err := disk.NewFileDisk(path, numSectors)
	if err != nil {
		return nil, err
	}
	return &Device{d: d}, nil
}

// Size returns the number of sectors on the device.
func (dv *Device) Size() uint64 {
	return dv.d.Size()
}

// ReadSector reads one full sector.
func (dv *Device) ReadSector(s common.Sector) []byte {
	if dv.stats != nil {
		defer dv.stats.read.record(time.Now())
	}
	dv.mu.Lock()
	defer dv.mu.Unlock()
	blk := dv.d.Read(s)
	out := make([]byte, common.SectorSize)
	copy(out, blk)
	return out
}

// WriteSector writes one full sector; data must be exactly SectorSize
// bytes.
func (dv *Device) WriteSector(s common.Sector, data []byte) {
	if uint64(len(data)) != common.SectorSize {
		panic("bdev: WriteSector: wrong-sized block")
	}
	if dv.stats != nil {
		defer dv.stats.write.record(time.Now())
	}
	dv.mu.Lock()
	defer dv.mu.Unlock()
	dv.d.Write(s, data)
}

// Barrier ensures previously issued writes are durable before it returns.
func (dv *Device) Barrier() {
	if dv.stats != nil {
		defer dv.stats.barrier.record(time.Now())
	}
	dv.mu.Lock()
	defer dv.mu.Unlock()
	dv.d.Barrier()
}

// Close releases the underlying device.
func (dv *Device) Close() {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	dv.d.Close()
}
