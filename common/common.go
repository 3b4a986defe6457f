// Package common holds the disk-layout constants and small shared types
// used across the filesystem and VM packages.
package common

import (
	"log"

	"github.com/tchajed/goose/machine/disk"
)

// Debug gates DPrintf's verbosity. 0 disables all debug output; raise it
// locally when chasing a specific bug.
const Debug = 0

// DPrintf logs format/a through the standard logger if level is at or
// below Debug, the one place every package routes its internal narration
// through so a single constant controls it kernel-wide.
func DPrintf(level int, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// SectorSize is the atomic unit of disk I/O. We reuse the backing disk
// device's native block size rather than hand-rolling a second notion of
// block size on top of it.
const SectorSize uint64 = disk.BlockSize

// NumDirect is the number of direct sector pointers a file header can
// hold. Chosen so numBytes(4) + numSectors(4) + dataSectors leaves no
// wasted space in a sector-sized header.
const NumDirect uint64 = (SectorSize - 8) / 4

// MaxFileSize is the largest file representable by a direct header.
const MaxFileSize uint64 = NumDirect * SectorSize

// MaxFileSizeWithIndirection is the largest file representable with one
// level of indirection.
const MaxFileSizeWithIndirection uint64 = NumDirect * MaxFileSize

// FileNameMaxLen bounds a single path component's length.
const FileNameMaxLen = 63

// NumDirEntries is the fixed number of slots in a directory file.
const NumDirEntries = 64

// FreeMapSector and RootDirSector are the two disk sectors reserved by the
// format step; every other allocated sector is a header or data sector
// reachable from one of these two files.
const (
	FreeMapSector uint64 = 0
	RootDirSector uint64 = 1
)

// Sector is a disk sector number. NilSector marks "no sector".
type Sector = uint64

const NilSector Sector = ^uint64(0)

// Pid identifies a process for swap-file naming and coremap ownership.
type Pid = uint64

// PageSize is the VM page size; pages map 1:1 onto disk sectors' backing
// device block size so a page can be written to a swap file with a single
// disk write.
const PageSize uint64 = SectorSize

// UserStackSize is the fixed stack region reserved past a process's code
// and initialized-data segments.
const UserStackSize uint64 = 8 * PageSize
