// Package directory implements the name -> header-sector mapping stored
// inside a regular file, with a parent link ("..") so a directory can
// resolve its own enclosing directory without external bookkeeping. Each
// entry is a fixed-width (inUse, isDir, name, sector) record, encoded
// directly into a byte slice rather than through the append-only
// marshal.Enc, since the name field's variable length within a fixed-width
// slot doesn't fit that model cleanly.
package directory

import (
	"encoding/binary"

	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
)

// EntrySize is the fixed on-disk width of one directory entry:
// inUse(1) + isDir(1) + name(FileNameMaxLen+1) + sector(4).
const EntrySize = 1 + 1 + (common.FileNameMaxLen + 1) + 4

type entry struct {
	inUse bool
	isDir bool
	name  string
	sector common.Sector
}

// Directory is the in-memory representation of a directory's entry table,
// plus a per-directory lock. No method of Directory acquires Lock, and
// filesystem serializes directory access under its file-system-wide lock
// instead of this one.
type Directory struct {
	Lock    *synch.Lock
	entries []entry
}

// New creates an empty directory table with NumDirEntries slots.
func New() *Directory {
	return &Directory{
		Lock:    synch.NewLock("directory"),
		entries: make([]entry, common.NumDirEntries),
	}
}

// Find returns the header-sector of name, or (0, false) if absent.
func (d *Directory) Find(name string) (common.Sector, bool) {
	for _, e := range d.entries {
		if e.inUse && e.name == name {
			return e.sector, true
		}
	}
	return 0, false
}

// FindDir is Find restricted to subdirectory entries.
func (d *Directory) FindDir(name string) (common.Sector, bool) {
	for _, e := range d.entries {
		if e.inUse && e.isDir && e.name == name {
			return e.sector, true
		}
	}
	return 0, false
}

// Add inserts name -> sector into the first free slot. Fails if the name
// already exists or no slot is free.
func (d *Directory) Add(name string, sector common.Sector, isDir bool) bool {
	if len(name) > common.FileNameMaxLen {
		return false
	}
	if _, ok := d.Find(name); ok {
		return false
	}
	for i := range d.entries {
		if !d.entries[i].inUse {
			d.entries[i] = entry{inUse: true, isDir: isDir, name: name, sector: sector}
			common.DPrintf(10, "directory: added %q -> sector %d (dir=%v)\n", name, sector, isDir)
			return true
		}
	}
	return false
}

// Remove clears the slot for name. Fails if name is absent.
func (d *Directory) Remove(name string) bool {
	for i := range d.entries {
		if d.entries[i].inUse && d.entries[i].name == name {
			d.entries[i] = entry{}
			common.DPrintf(10, "directory: removed %q\n", name)
			return true
		}
	}
	return false
}

// Listing is one entry's name and whether it is a subdirectory. Directory
// has no disk handle of its own, so walking into subdirectories
// recursively is filesystem.List's job, one layer up.
type Listing struct {
	Name  string
	IsDir bool
}

func (d *Directory) List() []Listing {
	var out []Listing
	for _, e := range d.entries {
		if e.inUse && e.name != ".." {
			out = append(out, Listing{Name: e.name, IsDir: e.isDir})
		}
	}
	return out
}

// IsEmpty reports whether the directory has no entries besides "..".
func (d *Directory) IsEmpty() bool {
	for _, e := range d.entries {
		if e.inUse && e.name != ".." {
			return false
		}
	}
	return true
}

// InitRoot initializes the root directory, whose ".." points to itself.
func (d *Directory) InitRoot() {
	if !d.Add("..", common.RootDirSector, true) {
		panic("directory: InitRoot: could not add \"..\"")
	}
}

// InitChild initializes a freshly created subdirectory's ".." entry,
// pointing to its parent's header sector.
func (d *Directory) InitChild(parentSector common.Sector) {
	if !d.Add("..", parentSector, true) {
		panic("directory: InitChild: could not add \"..\"")
	}
}

// Parent returns the directory's parent header sector (".." is always
// present, including for the root, which is its own parent).
func (d *Directory) Parent() common.Sector {
	s, ok := d.FindDir("..")
	if !ok {
		panic("directory: missing \"..\" entry")
	}
	return s
}

// encodeEntry packs a fixed-width entry directly into a byte slice.
func encodeEntry(e entry) []byte {
	buf := make([]byte, EntrySize)
	if e.inUse {
		buf[0] = 1
	}
	if e.isDir {
		buf[1] = 1
	}
	nameBytes := buf[2 : 2+common.FileNameMaxLen+1]
	copy(nameBytes, []byte(e.name))
	binary.LittleEndian.PutUint32(buf[2+common.FileNameMaxLen+1:], uint32(e.sector))
	return buf
}

func decodeEntry(data []byte) entry {
	inUse := data[0] != 0
	isDir := data[1] != 0
	nameBytes := data[2 : 2+common.FileNameMaxLen+1]
	end := 0
	for end < len(nameBytes) && nameBytes[end] != 0 {
		end++
	}
	name := string(nameBytes[:end])
	sector := common.Sector(binary.LittleEndian.Uint32(data[2+common.FileNameMaxLen+1:]))
	return entry{inUse: inUse, isDir: isDir, name: name, sector: sector}
}

// sectorFile is the minimal handle FetchFrom/WriteBack need; satisfied by
// openfile.Handle. Declared locally to avoid an import cycle, same
// rationale as bitmap.SectorFile.
type sectorFile interface {
	ReadAt(buf []byte, n uint64, pos uint64) uint64
	WriteAt(buf []byte, n uint64, pos uint64) uint64
}

// FetchFrom reads the full entry table from the directory's backing file.
func (d *Directory) FetchFrom(f sectorFile) {
	buf := make([]byte, EntrySize*common.NumDirEntries)
	f.ReadAt(buf, uint64(len(buf)), 0)
	for i := 0; i < common.NumDirEntries; i++ {
		d.entries[i] = decodeEntry(buf[i*EntrySize : (i+1)*EntrySize])
	}
}

// WriteBack writes the full entry table to the directory's backing file.
func (d *Directory) WriteBack(f sectorFile) {
	buf := make([]byte, 0, EntrySize*common.NumDirEntries)
	for _, e := range d.entries {
		buf = append(buf, encodeEntry(e)...)
	}
	f.WriteAt(buf, uint64(len(buf)), 0)
}

// DebugString renders a one-entry-per-line summary for debugging output.
func (d *Directory) DebugString() string {
	s := "directory:\n"
	for _, l := range d.List() {
		kind := "file"
		if l.IsDir {
			kind = "dir"
		}
		s += "  " + l.Name + " (" + kind + ")\n"
	}
	return s
}
