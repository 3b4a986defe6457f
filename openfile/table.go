// Package openfile implements the in-memory open-file table (reference
// counting and deferred deletion for files removed while still open) and
// the per-file read/write handle.
package openfile

import (
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/synch"
)

// entry is one open-file table row.
type entry struct {
	openInstances int
	toBeRemoved   bool
	controller    *AccessController
}

// Table is the set of currently open header-sectors, keyed by sector.
// Composite operations (open+create, close+maybe-delete, remove+
// maybe-defer) bracket several individual calls with Acquire/Release on
// the table's own lock.
type Table struct {
	Lock *synch.Lock

	entries map[common.Sector]*entry
}

// New creates an empty open-file table.
func New() *Table {
	return &Table{
		Lock:    synch.NewLock("open-file-table"),
		entries: make(map[common.Sector]*entry),
	}
}

// AddOpenFile increments sector's open count (creating an entry with count
// 1 and a fresh access controller if none existed) and returns its
// controller. Callers bracket this with Table.Lock.
func (tbl *Table) AddOpenFile(sector common.Sector) *AccessController {
	e := tbl.entries[sector]
	if e == nil {
		e = &entry{openInstances: 0, controller: newAccessController()}
		tbl.entries[sector] = e
	}
	e.openInstances++
	return e.controller
}

// CloseOpenFile decrements sector's open count and returns the new count,
// or -1 if sector has no entry.
func (tbl *Table) CloseOpenFile(sector common.Sector) int {
	e := tbl.entries[sector]
	if e == nil {
		return -1
	}
	e.openInstances--
	if e.openInstances < 0 {
		panic("openfile: negative open count")
	}
	return e.openInstances
}

// SetToBeRemoved latches sector's pending-delete flag and reports whether
// openInstances was 0 at that moment (i.e. deletion can proceed
// immediately rather than being deferred to the last Close).
func (tbl *Table) SetToBeRemoved(sector common.Sector) bool {
	e := tbl.entries[sector]
	if e == nil {
		// Not currently open: caller may delete immediately.
		return true
	}
	e.toBeRemoved = true
	return e.openInstances == 0
}

// GetToBeRemoved reports sector's pending-delete flag.
func (tbl *Table) GetToBeRemoved(sector common.Sector) bool {
	e := tbl.entries[sector]
	if e == nil {
		return false
	}
	return e.toBeRemoved
}

// RemoveOpenFile unlinks sector's entry entirely.
func (tbl *Table) RemoveOpenFile(sector common.Sector) {
	delete(tbl.entries, sector)
}

// IsOpen reports whether sector currently has an entry (open or pending
// removal), for tests.
func (tbl *Table) IsOpen(sector common.Sector) bool {
	_, ok := tbl.entries[sector]
	return ok
}
