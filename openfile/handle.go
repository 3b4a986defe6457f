package openfile

import (
	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/bitmap"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/fsheader"
	"github.com/nachosfs/nachosfs/synch"
)

// Handle is an open file: the header sector plus the in-memory header it
// was fetched from, guarded by the table's per-file AccessController.
// ReadAt/WriteAt work a sector at a time, read-modify-writing any partial
// first/last sector so a write never clobbers bytes outside its own range.
//
// ReadAt/WriteAt take no explicit caller thread: a Handle is bound to the
// thread that opened it, the same way a Nachos OpenFile is owned by the
// process that opened it rather than shared across arbitrary callers.
type Handle struct {
	Sector  common.Sector
	Header  *fsheader.File
	dev     *bdev.Device
	freeMap *bitmap.Bitmap
	fmLock  *synch.Lock
	ctrl    *AccessController
	owner   *synch.Thread
}

// NewHandle wraps an already-fetched header as an open handle owned by t.
// freeMap and fmLock are the filesystem-wide free sector map and the lock
// guarding it, acquired only when a write extends the file.
func NewHandle(t *synch.Thread, sector common.Sector, hdr *fsheader.File, dev *bdev.Device, freeMap *bitmap.Bitmap, fmLock *synch.Lock, ctrl *AccessController) *Handle {
	return &Handle{Sector: sector, Header: hdr, dev: dev, freeMap: freeMap, fmLock: fmLock, ctrl: ctrl, owner: t}
}

// NewStandaloneHandle wraps a header in a handle with its own private
// access controller, for internal filesystem bookkeeping (the free-map and
// root-directory files) that never goes through the open-file table and so
// needs no shared, ref-counted controller.
func NewStandaloneHandle(t *synch.Thread, sector common.Sector, hdr *fsheader.File, dev *bdev.Device, freeMap *bitmap.Bitmap, fmLock *synch.Lock) *Handle {
	return NewHandle(t, sector, hdr, dev, freeMap, fmLock, newAccessController())
}

// Length returns the file's current size in bytes.
func (h *Handle) Length() uint64 {
	return h.Header.NumBytes
}

// ReadAt copies up to n bytes starting at pos into buf, returning the
// number of bytes actually read. pos >= length reads zero bytes; a read
// that runs past the end of the file is truncated to the file's length.
func (h *Handle) ReadAt(buf []byte, n uint64, pos uint64) uint64 {
	h.ctrl.BeginRead(h.owner)
	defer h.ctrl.EndRead(h.owner)

	length := h.Header.NumBytes
	if pos >= length {
		return 0
	}
	if pos+n > length {
		n = length - pos
	}
	return h.readSectors(buf, n, pos)
}

// WriteAt writes n bytes from buf starting at pos, extending the file (and
// its header, under the free-map lock) if pos+n exceeds the current
// length. pos > length is rejected as a no-op (returns 0); pos == length
// is the normal append case. Partial first/last sectors are
// read-modify-write.
func (h *Handle) WriteAt(buf []byte, n uint64, pos uint64) uint64 {
	h.ctrl.BeginWrite(h.owner)
	defer h.ctrl.EndWrite(h.owner)

	if pos > h.Header.NumBytes {
		return 0
	}

	if pos+n > h.Header.NumBytes {
		h.fmLock.Acquire(h.owner)
		ok := h.Header.Extend(h.freeMap, pos+n-h.Header.NumBytes)
		h.dev.WriteSector(h.Sector, h.Header.Encode())
		h.fmLock.Release(h.owner)
		if !ok {
			if pos >= h.Header.NumBytes {
				return 0
			}
			n = h.Header.NumBytes - pos
		}
	}

	return h.writeSectors(buf, n, pos)
}

func (h *Handle) readSectors(buf []byte, n uint64, pos uint64) uint64 {
	var done uint64
	for done < n {
		offset := pos + done
		sector := h.Header.ByteToSector(offset)
		sectorOff := offset % common.SectorSize
		chunk := common.SectorSize - sectorOff
		if chunk > n-done {
			chunk = n - done
		}
		block := h.dev.ReadSector(sector)
		copy(buf[done:done+chunk], block[sectorOff:sectorOff+chunk])
		done += chunk
	}
	return done
}

func (h *Handle) writeSectors(buf []byte, n uint64, pos uint64) uint64 {
	var done uint64
	for done < n {
		offset := pos + done
		sector := h.Header.ByteToSector(offset)
		sectorOff := offset % common.SectorSize
		chunk := common.SectorSize - sectorOff
		if chunk > n-done {
			chunk = n - done
		}

		var block []byte
		if sectorOff != 0 || chunk != common.SectorSize {
			block = h.dev.ReadSector(sector)
		} else {
			block = make([]byte, common.SectorSize)
		}
		copy(block[sectorOff:sectorOff+chunk], buf[done:done+chunk])
		h.dev.WriteSector(sector, block)
		done += chunk
	}
	return done
}
