// Package filesystem is the kernel's file-system facade: a single object
// holding the free-map, the root directory, and the open-file table,
// exposing Create/Open/Remove/List/CD plus a path resolver and a Check
// consistency pass. There is no transaction/journal machinery — crash
// recovery is out of scope, so Format is a plain two-step "reserve
// metadata sectors, then write metadata" bootstrap.
package filesystem

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/bitmap"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/directory"
	"github.com/nachosfs/nachosfs/fsheader"
	"github.com/nachosfs/nachosfs/openfile"
	"github.com/nachosfs/nachosfs/synch"
)

// FileSystem is the process-wide file-system state, owned by a single
// kernel context value rather than accessed through package globals.
// Lock ordering is fixed: fsLock -> (per-directory access, here folded
// into fsLock) -> freeMapLock -> table.Lock. Access controllers, reached
// only through openfile.Handle, are acquired after all of the above are
// released.
type FileSystem struct {
	dev     *bdev.Device
	fsLock  *synch.Lock
	freeMap *bitmap.Bitmap
	fmLock  *synch.Lock
	table   *openfile.Table

	cwdMu sync.Mutex
	cwd   map[*synch.Thread]common.Sector
}

// Format initializes a fresh filesystem on dev: sectors 0 and 1 are
// reserved for the free-map's own header and the root directory's header,
// mirroring mkfs.initFs's reservation of its first few sectors before
// anything else is allocated.
func Format(dev *bdev.Device) *FileSystem {
	total := dev.Size()
	freeMap := bitmap.New(total)
	freeMap.Mark(common.FreeMapSector)
	freeMap.Mark(common.RootDirSector)

	bootThread := synch.NewThread("mkfs", 0)
	fmLock := synch.NewLock("free-map")

	fmBytes := uint64(len(freeMap.Bytes()))
	fmHdr, ok := fsheader.Allocate(freeMap, fmBytes)
	if !ok {
		panic("filesystem: Format: disk too small to hold the free-map file")
	}
	rootHdr, ok := fsheader.Allocate(freeMap, common.NumDirEntries*directory.EntrySize)
	if !ok {
		panic("filesystem: Format: disk too small to hold the root directory")
	}

	dev.WriteSector(common.FreeMapSector, fmHdr.Encode())
	dev.WriteSector(common.RootDirSector, rootHdr.Encode())

	fmHandle := openfile.NewStandaloneHandle(bootThread, common.FreeMapSector, fmHdr, dev, freeMap, fmLock)
	freeMap.WriteBack(fmHandle)

	root := directory.New()
	root.InitRoot()
	rootHandle := openfile.NewStandaloneHandle(bootThread, common.RootDirSector, rootHdr, dev, freeMap, fmLock)
	root.WriteBack(rootHandle)

	return &FileSystem{
		dev:     dev,
		fsLock:  synch.NewLock("file-system"),
		freeMap: freeMap,
		fmLock:  fmLock,
		table:   openfile.New(),
		cwd:     make(map[*synch.Thread]common.Sector),
	}
}

// Boot attaches to an already-formatted disk, reading the free-map back
// into memory from its on-disk file.
func Boot(dev *bdev.Device) *FileSystem {
	total := dev.Size()
	freeMap := bitmap.New(total)
	fmLock := synch.NewLock("free-map")

	fmHdr := fsheader.FetchFrom(dev, common.FreeMapSector)
	bootThread := synch.NewThread("boot", 0)
	fmHandle := openfile.NewStandaloneHandle(bootThread, common.FreeMapSector, fmHdr, dev, freeMap, fmLock)
	freeMap.FetchFrom(fmHandle)

	return &FileSystem{
		dev:     dev,
		fsLock:  synch.NewLock("file-system"),
		freeMap: freeMap,
		fmLock:  fmLock,
		table:   openfile.New(),
		cwd:     make(map[*synch.Thread]common.Sector),
	}
}

func (fs *FileSystem) currentDir(t *synch.Thread) common.Sector {
	fs.cwdMu.Lock()
	defer fs.cwdMu.Unlock()
	s, ok := fs.cwd[t]
	if !ok {
		return common.RootDirSector
	}
	return s
}

func (fs *FileSystem) setCurrentDir(t *synch.Thread, s common.Sector) {
	fs.cwdMu.Lock()
	defer fs.cwdMu.Unlock()
	fs.cwd[t] = s
}

// fetchDir reads the directory entry table stored in the file at sector.
func (fs *FileSystem) fetchDir(t *synch.Thread, sector common.Sector) (*directory.Directory, *fsheader.File) {
	hdr := fsheader.FetchFrom(fs.dev, sector)
	h := openfile.NewStandaloneHandle(t, sector, hdr, fs.dev, fs.freeMap, fs.fmLock)
	d := directory.New()
	d.FetchFrom(h)
	return d, hdr
}

func (fs *FileSystem) writeDirBack(t *synch.Thread, sector common.Sector, hdr *fsheader.File, d *directory.Directory) {
	h := openfile.NewStandaloneHandle(t, sector, hdr, fs.dev, fs.freeMap, fs.fmLock)
	d.WriteBack(h)
}

func (fs *FileSystem) writeFreeMapBack(t *synch.Thread) {
	hdr := fsheader.FetchFrom(fs.dev, common.FreeMapSector)
	h := openfile.NewStandaloneHandle(t, common.FreeMapSector, hdr, fs.dev, fs.freeMap, fs.fmLock)
	fs.freeMap.WriteBack(h)
}

// splitPath tokenizes path on "/"; a leading "/" means resolution starts
// at root rather than the caller's current directory.
func splitPath(path string) (absolute bool, parts []string) {
	absolute = strings.HasPrefix(path, "/")
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return absolute, parts
}

// resolveDir walks every component of path as a directory name (following
// ".." via the stored parent link), returning the final directory's
// header sector. Used by CD and List, which have no trailing basename.
func (fs *FileSystem) resolveDir(t *synch.Thread, path string) (common.Sector, bool) {
	absolute, parts := splitPath(path)
	cur := fs.currentDir(t)
	if absolute {
		cur = common.RootDirSector
	}
	for _, part := range parts {
		d, _ := fs.fetchDir(t, cur)
		if part == ".." {
			cur = d.Parent()
			continue
		}
		next, ok := d.FindDir(part)
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

// resolveParent walks all but the last component of path as directories,
// returning the enclosing directory's sector and the final basename. Used
// by Create/CreateDir/Open/Remove/RemoveDir.
func (fs *FileSystem) resolveParent(t *synch.Thread, path string) (common.Sector, string, bool) {
	absolute, parts := splitPath(path)
	if len(parts) == 0 {
		return 0, "", false
	}
	cur := fs.currentDir(t)
	if absolute {
		cur = common.RootDirSector
	}
	for _, part := range parts[:len(parts)-1] {
		d, _ := fs.fetchDir(t, cur)
		if part == ".." {
			cur = d.Parent()
			continue
		}
		next, ok := d.FindDir(part)
		if !ok {
			return 0, "", false
		}
		cur = next
	}
	return cur, parts[len(parts)-1], true
}

// allocateEntry stages a header-sector and a new header of the requested
// size against a private clone of the free-map, leaving fs.freeMap
// untouched until the caller commits. This is what makes Create/CreateDir
// all-or-nothing across "allocate" and "add to directory".
func (fs *FileSystem) allocateEntry(size uint64) (common.Sector, *fsheader.File, *bitmap.Bitmap, bool) {
	staged := fs.freeMap.Clone()
	sector, ok := staged.Find()
	if !ok {
		return 0, nil, nil, false
	}
	hdr, ok := fsheader.Allocate(staged, size)
	if !ok {
		return 0, nil, nil, false
	}
	return sector, hdr, staged, true
}

// Create makes a new regular file of initialSize bytes at path.
func (fs *FileSystem) Create(t *synch.Thread, path string, initialSize uint64) bool {
	fs.fsLock.Acquire(t)
	defer fs.fsLock.Release(t)
	return fs.create(t, path, initialSize, false)
}

// CreateDir makes a new, empty subdirectory at path.
func (fs *FileSystem) CreateDir(t *synch.Thread, path string) bool {
	fs.fsLock.Acquire(t)
	defer fs.fsLock.Release(t)
	return fs.create(t, path, common.NumDirEntries*directory.EntrySize, true)
}

func (fs *FileSystem) create(t *synch.Thread, path string, initialSize uint64, isDir bool) bool {
	parentSector, base, ok := fs.resolveParent(t, path)
	if !ok {
		return false
	}
	dir, dirHdr := fs.fetchDir(t, parentSector)
	if _, exists := dir.Find(base); exists {
		return false
	}

	fs.fmLock.Acquire(t)
	sector, hdr, staged, ok := fs.allocateEntry(initialSize)
	if !ok {
		fs.fmLock.Release(t)
		return false
	}
	if !dir.Add(base, sector, isDir) {
		fs.fmLock.Release(t)
		return false
	}
	*fs.freeMap = *staged
	fs.dev.WriteSector(sector, hdr.Encode())
	fs.writeDirBack(t, parentSector, dirHdr, dir)
	fs.writeFreeMapBack(t)
	fs.fmLock.Release(t)

	if isDir {
		child := directory.New()
		child.InitChild(parentSector)
		h := openfile.NewStandaloneHandle(t, sector, hdr, fs.dev, fs.freeMap, fs.fmLock)
		child.WriteBack(h)
	}
	return true
}

// Open resolves path and returns a handle bound to the file's shared
// access controller, or (nil, false) if path does not exist.
func (fs *FileSystem) Open(t *synch.Thread, path string) (*openfile.Handle, bool) {
	fs.fsLock.Acquire(t)
	parentSector, base, ok := fs.resolveParent(t, path)
	if !ok {
		fs.fsLock.Release(t)
		return nil, false
	}
	dir, _ := fs.fetchDir(t, parentSector)
	sector, ok := dir.Find(base)
	fs.fsLock.Release(t)
	if !ok {
		return nil, false
	}

	fs.table.Lock.Acquire(t)
	ctrl := fs.table.AddOpenFile(sector)
	fs.table.Lock.Release(t)

	hdr := fsheader.FetchFrom(fs.dev, sector)
	return openfile.NewHandle(t, sector, hdr, fs.dev, fs.freeMap, fs.fmLock, ctrl), true
}

// Close unregisters h from the open-file table, reclaiming its sectors if
// it was removed while still open and this was the last instance.
func (fs *FileSystem) Close(t *synch.Thread, h *openfile.Handle) {
	fs.table.Lock.Acquire(t)
	n := fs.table.CloseOpenFile(h.Sector)
	deleteNow := n == 0 && fs.table.GetToBeRemoved(h.Sector)
	if deleteNow {
		fs.table.RemoveOpenFile(h.Sector)
	}
	fs.table.Lock.Release(t)

	if deleteNow {
		common.DPrintf(10, "filesystem: reclaiming sector %d on last close\n", h.Sector)
		fs.fmLock.Acquire(t)
		h.Header.Deallocate(fs.freeMap)
		fs.freeMap.Clear(h.Sector)
		fs.writeFreeMapBack(t)
		fs.fmLock.Release(t)
	}
}

// Remove unlinks path. If the file has no open instances, its sectors are
// reclaimed immediately; otherwise deletion is deferred to the last Close.
func (fs *FileSystem) Remove(t *synch.Thread, path string) bool {
	return fs.remove(t, path, false)
}

// RemoveDir is Remove restricted to (and additionally refusing non-empty)
// directories.
func (fs *FileSystem) RemoveDir(t *synch.Thread, path string) bool {
	return fs.remove(t, path, true)
}

func (fs *FileSystem) remove(t *synch.Thread, path string, wantDir bool) bool {
	fs.fsLock.Acquire(t)
	parentSector, base, ok := fs.resolveParent(t, path)
	if !ok {
		fs.fsLock.Release(t)
		return false
	}
	dir, dirHdr := fs.fetchDir(t, parentSector)
	sector, ok := dir.Find(base)
	if !ok {
		fs.fsLock.Release(t)
		return false
	}
	_, isDir := dir.FindDir(base)
	if isDir != wantDir {
		fs.fsLock.Release(t)
		return false
	}
	if wantDir {
		child, _ := fs.fetchDir(t, sector)
		if !child.IsEmpty() {
			fs.fsLock.Release(t)
			return false
		}
	}

	dir.Remove(base)
	fs.writeDirBack(t, parentSector, dirHdr, dir)
	fs.fsLock.Release(t)

	fs.table.Lock.Acquire(t)
	canDeleteNow := fs.table.SetToBeRemoved(sector)
	if canDeleteNow {
		fs.table.RemoveOpenFile(sector)
	}
	fs.table.Lock.Release(t)

	if canDeleteNow {
		common.DPrintf(10, "filesystem: reclaiming sector %d immediately on remove\n", sector)
		hdr := fsheader.FetchFrom(fs.dev, sector)
		fs.fmLock.Acquire(t)
		hdr.Deallocate(fs.freeMap)
		fs.freeMap.Clear(sector)
		fs.writeFreeMapBack(t)
		fs.fmLock.Release(t)
	} else {
		common.DPrintf(10, "filesystem: deferring reclaim of sector %d, still open\n", sector)
	}
	return true
}

// List returns path's directory entries, excluding "..". When recursive is
// true, every subdirectory is walked too and its entries are reported with
// names prefixed by their path from path (e.g. "sub/file").
func (fs *FileSystem) List(t *synch.Thread, path string, recursive bool) ([]directory.Listing, bool) {
	fs.fsLock.Acquire(t)
	defer fs.fsLock.Release(t)
	sector, ok := fs.resolveDir(t, path)
	if !ok {
		return nil, false
	}
	if !recursive {
		d, _ := fs.fetchDir(t, sector)
		return d.List(), true
	}
	return fs.listRecursive(t, sector, ""), true
}

func (fs *FileSystem) listRecursive(t *synch.Thread, sector common.Sector, prefix string) []directory.Listing {
	d, _ := fs.fetchDir(t, sector)
	var out []directory.Listing
	for _, e := range d.List() {
		name := e.Name
		if prefix != "" {
			name = prefix + "/" + name
		}
		out = append(out, directory.Listing{Name: name, IsDir: e.IsDir})
		if e.IsDir {
			childSector, _ := d.FindDir(e.Name)
			out = append(out, fs.listRecursive(t, childSector, name)...)
		}
	}
	return out
}

// CD changes t's current directory.
func (fs *FileSystem) CD(t *synch.Thread, path string) bool {
	fs.fsLock.Acquire(t)
	defer fs.fsLock.Release(t)
	sector, ok := fs.resolveDir(t, path)
	if !ok {
		return false
	}
	fs.setCurrentDir(t, sector)
	return true
}

// Check walks the reachable file tree from the root directory, building a
// shadow bitmap, and reports any inconsistency against the persisted
// free-map: a repeated filename, an out-of-range sector, a sector claimed
// by more than one header, or any disagreement between the shadow and the
// real free-map.
func (fs *FileSystem) Check(t *synch.Thread) []string {
	var errs []string
	shadow := bitmap.New(fs.freeMap.NumBits())
	shadow.Mark(common.FreeMapSector)
	shadow.Mark(common.RootDirSector)

	claim := func(s common.Sector, what string) {
		if s >= shadow.NumBits() {
			errs = append(errs, fmt.Sprintf("%s: sector %d out of range", what, s))
			return
		}
		if shadow.Test(s) {
			errs = append(errs, fmt.Sprintf("%s: sector %d claimed more than once", what, s))
			return
		}
		shadow.Mark(s)
	}

	var claimHeader func(hdr *fsheader.File, what string)
	claimHeader = func(hdr *fsheader.File, what string) {
		if hdr.IsIndirect() {
			n := hdr.NumSectors
			for i := uint64(0); i < n; i++ {
				claim(hdr.DataSectors[i], what+" (indirect child header)")
				claimHeader(hdr.Child(i), what)
			}
			return
		}
		n := (hdr.NumBytes + common.SectorSize - 1) / common.SectorSize
		for i := uint64(0); i < n; i++ {
			claim(hdr.DataSectors[i], what+" (data sector)")
		}
	}

	fmHdr := fsheader.FetchFrom(fs.dev, common.FreeMapSector)
	claimHeader(fmHdr, "free-map file")
	rootHdr := fsheader.FetchFrom(fs.dev, common.RootDirSector)
	claimHeader(rootHdr, "root directory")

	seen := map[string]bool{}
	var walk func(sector common.Sector, label string)
	walk = func(sector common.Sector, label string) {
		d, _ := fs.fetchDir(t, sector)
		for _, e := range d.List() {
			key := label + "/" + e.Name
			if seen[key] {
				errs = append(errs, fmt.Sprintf("repeated filename: %s", key))
				continue
			}
			seen[key] = true
			entrySector, _ := d.Find(e.Name)
			claim(entrySector, key+" (header)")
			hdr := fsheader.FetchFrom(fs.dev, entrySector)
			claimHeader(hdr, key)
			if e.IsDir {
				walk(entrySector, key)
			}
		}
	}
	walk(common.RootDirSector, "")

	persisted := bitmap.New(fs.freeMap.NumBits())
	persisted.FetchFrom(openfile.NewStandaloneHandle(t, common.FreeMapSector, fmHdr, fs.dev, fs.freeMap, fs.fmLock))
	for s := uint64(0); s < persisted.NumBits(); s++ {
		if persisted.Test(s) != shadow.Test(s) {
			errs = append(errs, fmt.Sprintf("sector %d: free-map disagrees with reachability (free-map=%v reachable=%v)", s, persisted.Test(s), shadow.Test(s)))
		}
	}
	return errs
}
