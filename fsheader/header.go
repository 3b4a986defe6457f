// Package fsheader implements the on-disk file header: the index
// structure mapping a file's byte offsets to sectors, with one level of
// indirection. A header is represented as a tagged variant (direct, or
// indirect with child headers) rather than a recursive index of arbitrary
// depth.
package fsheader

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/bitmap"
	"github.com/nachosfs/nachosfs/common"
)

// File is a file header, either direct (dataSectors holds data sector
// numbers) or indirect (dataSectors holds child-header sector numbers,
// each child a direct header).
type File struct {
	NumBytes    uint64
	NumSectors  uint64
	DataSectors [common.NumDirect]common.Sector

	indirect bool
	children []*File // populated only when indirect; len == numSectors used
}

// IsIndirect reports whether the header is a two-level (indirect) header.
func (f *File) IsIndirect() bool {
	return f.indirect
}

// Child returns the i'th child header of an indirect header.
func (f *File) Child(i uint64) *File {
	return f.children[i]
}

// New creates an empty, unallocated header.
func New() *File {
	f := &File{}
	for i := range f.DataSectors {
		f.DataSectors[i] = common.NilSector
	}
	return f
}

// Encode serializes the header (not its children — those live at their
// own sectors) to exactly one sector's worth of bytes, mirroring
// inode.Inode.Encode.
func (f *File) Encode() []byte {
	enc := marshal.NewEnc(common.SectorSize)
	enc.PutInt32(uint32(f.NumBytes))
	enc.PutInt32(uint32(f.NumSectors))
	for _, s := range f.DataSectors {
		enc.PutInt32(uint32(s))
	}
	return enc.Finish()
}

// Decode parses a header's own sector; it does not fetch children (see
// FetchFrom for the recursive read).
func Decode(data []byte) *File {
	dec := marshal.NewDec(data)
	f := &File{}
	f.NumBytes = uint64(dec.GetInt32())
	f.NumSectors = uint64(dec.GetInt32())
	for i := range f.DataSectors {
		s := dec.GetInt32()
		if s == ^uint32(0) {
			// Encode truncates NilSector to 32 bits; restore it.
			f.DataSectors[i] = common.NilSector
		} else {
			f.DataSectors[i] = common.Sector(s)
		}
	}
	f.indirect = f.NumBytes > common.MaxFileSize
	return f
}

// FetchFrom reads the header at sector s, then recursively fetches any
// child headers referenced by an indirect header's data-sector array.
func FetchFrom(dev *bdev.Device, s common.Sector) *File {
	f := Decode(dev.ReadSector(s))
	if f.indirect {
		f.children = make([]*File, f.NumSectors)
		for i := uint64(0); i < f.NumSectors; i++ {
			f.children[i] = FetchFrom(dev, f.DataSectors[i])
		}
	}
	return f
}

// WriteBack writes the header (and, if indirect, its children) back to
// disk at sector s.
func (f *File) WriteBack(dev *bdev.Device, s common.Sector) {
	dev.WriteSector(s, f.Encode())
	if f.indirect {
		for i := uint64(0); i < f.NumSectors; i++ {
			f.children[i].WriteBack(dev, f.DataSectors[i])
		}
	}
}

// ByteToSector maps a byte offset to the data sector that holds it.
func (f *File) ByteToSector(offset uint64) common.Sector {
	if f.indirect {
		child := f.children[offset/common.MaxFileSize]
		return child.ByteToSector(offset % common.MaxFileSize)
	}
	return f.DataSectors[offset/common.SectorSize]
}

func sectorsNeeded(size uint64) uint64 {
	return (size + common.SectorSize - 1) / common.SectorSize
}

// Allocate reserves the sectors (and, if needed, indirection headers) to
// hold size bytes, entirely in the in-memory freeMap — no bits are marked
// unless the whole allocation succeeds, and no disk writes happen here
// (the caller writes back the header and freeMap once satisfied): an
// all-or-nothing reservation.
func Allocate(freeMap *bitmap.Bitmap, size uint64) (*File, bool) {
	if size > common.MaxFileSizeWithIndirection {
		return nil, false
	}
	staged := freeMap.Clone()
	f := New()
	if !f.allocate(staged, size) {
		return nil, false
	}
	*freeMap = *staged
	return f, true
}

func (f *File) allocate(staged *bitmap.Bitmap, size uint64) bool {
	f.NumBytes = size
	if size <= common.MaxFileSize {
		n := sectorsNeeded(size)
		for i := uint64(0); i < n; i++ {
			s, ok := staged.Find()
			if !ok {
				return false
			}
			f.DataSectors[i] = s
		}
		f.NumSectors = n
		f.indirect = false
		return true
	}

	f.indirect = true
	nChildren := (sectorsNeeded(size) + common.NumDirect - 1) / common.NumDirect
	f.children = make([]*File, 0, nChildren)
	remaining := size
	for i := uint64(0); i < nChildren; i++ {
		s, ok := staged.Find()
		if !ok {
			return false
		}
		childSize := remaining
		if childSize > common.MaxFileSize {
			childSize = common.MaxFileSize
		}
		child := New()
		if !child.allocate(staged, childSize) {
			return false
		}
		f.DataSectors[i] = s
		f.children = append(f.children, child)
		remaining -= childSize
	}
	f.NumSectors = nChildren
	return true
}

// Extend grows the file by delta bytes, preserving previously allocated
// content at the same byte offsets. It promotes a direct header to
// indirect in place if the new size crosses MaxFileSize. Like Allocate, it
// mutates only a staged clone of freeMap until the whole extension
// succeeds.
func (f *File) Extend(freeMap *bitmap.Bitmap, delta uint64) bool {
	newSize := f.NumBytes + delta
	if newSize > common.MaxFileSizeWithIndirection {
		return false
	}
	staged := freeMap.Clone()
	if !f.extend(staged, newSize) {
		return false
	}
	*freeMap = *staged
	return true
}

func (f *File) extend(staged *bitmap.Bitmap, newSize uint64) bool {
	if !f.indirect && newSize <= common.MaxFileSize {
		have := sectorsNeeded(f.NumBytes)
		need := sectorsNeeded(newSize)
		for i := have; i < need; i++ {
			s, ok := staged.Find()
			if !ok {
				return false
			}
			f.DataSectors[i] = s
		}
		f.NumSectors = need
		f.NumBytes = newSize
		return true
	}

	if !f.indirect {
		// Promote: synthesize a child holding the pre-existing direct
		// sectors, then grow via the indirect path.
		oldChild := &File{
			NumBytes:    f.NumBytes,
			NumSectors:  f.NumSectors,
			DataSectors: f.DataSectors,
		}
		var cleared [common.NumDirect]common.Sector
		for i := range cleared {
			cleared[i] = common.NilSector
		}
		f.DataSectors = cleared
		f.children = []*File{oldChild}
		f.indirect = true
		f.NumSectors = 1
		s, ok := staged.Find()
		if !ok {
			return false
		}
		f.DataSectors[0] = s
	}

	remaining := newSize
	for i := uint64(0); i < f.NumSectors; i++ {
		childSize := remaining
		if childSize > common.MaxFileSize {
			childSize = common.MaxFileSize
		}
		if childSize > f.children[i].NumBytes {
			if !f.children[i].extend(staged, childSize) {
				return false
			}
		}
		remaining -= childSize
	}
	for remaining > 0 {
		s, ok := staged.Find()
		if !ok {
			return false
		}
		childSize := remaining
		if childSize > common.MaxFileSize {
			childSize = common.MaxFileSize
		}
		child := New()
		if !child.allocate(staged, childSize) {
			return false
		}
		f.DataSectors[f.NumSectors] = s
		f.children = append(f.children, child)
		f.NumSectors++
		remaining -= childSize
	}
	f.NumBytes = newSize
	return true
}

// Deallocate recursively frees children first, then this header's direct
// sectors, and finally its own header sector is reclaimed by the caller
// (filesystem.Remove owns the header's sector, fsheader only owns its
// data/children).
func (f *File) Deallocate(freeMap *bitmap.Bitmap) {
	if f.indirect {
		for i, child := range f.children {
			child.Deallocate(freeMap)
			freeMap.Clear(f.DataSectors[i])
		}
		return
	}
	n := sectorsNeeded(f.NumBytes)
	for i := uint64(0); i < n; i++ {
		freeMap.Clear(f.DataSectors[i])
	}
}

// DebugString mirrors file_header.cc's Print(): a one-line summary
// followed by the sector list, for debugging output.
func (f *File) DebugString() string {
	if f.indirect {
		return fmt.Sprintf("indirect header: size=%d children=%d", f.NumBytes, f.NumSectors)
	}
	return fmt.Sprintf("direct header: size=%d sectors=%v", f.NumBytes, f.DataSectors[:sectorsNeeded(f.NumBytes)])
}
