// Package kernel is the kernel context: a single explicit value owning
// every process-wide singleton (the disk, the filesystem facade, the
// coremap, physical memory, and the shared page-fault handler) rather
// than hidden package globals.
package kernel

import (
	"sync"
	"time"

	"github.com/nachosfs/nachosfs/bdev"
	"github.com/nachosfs/nachosfs/common"
	"github.com/nachosfs/nachosfs/filesystem"
	"github.com/nachosfs/nachosfs/openfile"
	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/addrspace"
	"github.com/nachosfs/nachosfs/vm/coremap"
	"github.com/nachosfs/nachosfs/vm/loader"
	"github.com/nachosfs/nachosfs/vm/pagefault"
)

// Config selects the runtime switches: the disk's geometry, physical
// frame count, replacement policy, and where per-process swap files live.
type Config struct {
	DiskPath        string // "" selects an in-memory disk
	NumSectors      uint64
	NumFrames       uint64
	ReplacementPolicy coremap.Policy
	SwapDir         string
	Timed           bool // call EnableStats on the disk for latency stats
}

// Kernel holds every process-wide resource, constructed once by Format or
// Boot and threaded explicitly through every operation rather than reached
// through package globals.
type Kernel struct {
	Disk       *bdev.Device
	FS         *filesystem.FileSystem
	Coremap    *coremap.Coremap
	Memory     *addrspace.Memory
	Policy     coremap.Policy
	SwapDir    string
	PageFault  *pagefault.Handler
	Stats      *Stats

	procMu   sync.Mutex
	nextPid  common.Pid
	procs    map[common.Pid]*addrspace.AddressSpace
}

func openDisk(cfg Config) (*bdev.Device, error) {
	var dev *bdev.Device
	if cfg.DiskPath == "" {
		dev = bdev.NewMemDevice(cfg.NumSectors)
	} else {
		var err error
		dev, err = bdev.NewFileDevice(cfg.DiskPath, cfg.NumSectors)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Timed {
		dev.EnableStats()
	}
	return dev, nil
}

// Format creates a fresh filesystem and a fresh coremap/memory, per
// mkfs.initFs's "wipe and rebuild metadata" bootstrap.
func Format(cfg Config) (*Kernel, error) {
	dev, err := openDisk(cfg)
	if err != nil {
		return nil, err
	}
	return newKernel(cfg, dev, filesystem.Format(dev)), nil
}

// Boot attaches to an already-formatted disk.
func Boot(cfg Config) (*Kernel, error) {
	dev, err := openDisk(cfg)
	if err != nil {
		return nil, err
	}
	return newKernel(cfg, dev, filesystem.Boot(dev)), nil
}

func newKernel(cfg Config, dev *bdev.Device, fs *filesystem.FileSystem) *Kernel {
	return &Kernel{
		Disk:      dev,
		FS:        fs,
		Coremap:   coremap.New(cfg.NumFrames),
		Memory:    addrspace.NewMemory(cfg.NumFrames),
		Policy:    cfg.ReplacementPolicy,
		SwapDir:   cfg.SwapDir,
		PageFault: pagefault.New(),
		Stats:     &Stats{},
		procs:     make(map[common.Pid]*addrspace.AddressSpace),
	}
}

// Exec loads the synthetic executable image in raw, allocating a fresh
// pid and address space; cmd/nachos-shell's "run" command is the
// user-facing entry point that calls this. Returns (0, false) on a
// malformed image or if swap-file creation fails.
func (k *Kernel) Exec(raw []byte) (common.Pid, bool) {
	exe, err := loader.Parse(raw)
	if err != nil {
		return 0, false
	}

	k.procMu.Lock()
	k.nextPid++
	pid := k.nextPid
	k.procMu.Unlock()

	as, err := addrspace.New(pid, exe, k.Memory, k.Coremap, k.Policy, k.SwapDir)
	if err != nil {
		return 0, false
	}

	k.procMu.Lock()
	k.procs[pid] = as
	k.procMu.Unlock()
	return pid, true
}

// AddressSpace returns the running address space for pid, if any.
func (k *Kernel) AddressSpace(pid common.Pid) (*addrspace.AddressSpace, bool) {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	as, ok := k.procs[pid]
	return as, ok
}

// Exit tears down pid's address space: releases its frames and deletes its
// swap file.
func (k *Kernel) Exit(t *synch.Thread, pid common.Pid) {
	k.procMu.Lock()
	as, ok := k.procs[pid]
	delete(k.procs, pid)
	k.procMu.Unlock()
	if ok {
		as.Destroy(t)
	}
}

// Create makes a new regular file, recording the call's latency in Stats.
func (k *Kernel) Create(t *synch.Thread, path string, initialSize uint64) bool {
	start := time.Now()
	defer k.Stats.Create.Record(start)
	return k.FS.Create(t, path, initialSize)
}

// Open resolves path and returns a handle, recording the call's latency in
// Stats.
func (k *Kernel) Open(t *synch.Thread, path string) (*openfile.Handle, bool) {
	start := time.Now()
	defer k.Stats.Open.Record(start)
	return k.FS.Open(t, path)
}

// CloseFile unregisters h from the open-file table, recording the call's
// latency in Stats.
func (k *Kernel) CloseFile(t *synch.Thread, h *openfile.Handle) {
	start := time.Now()
	defer k.Stats.Close.Record(start)
	k.FS.Close(t, h)
}

// Remove unlinks path, recording the call's latency in Stats.
func (k *Kernel) Remove(t *synch.Thread, path string) bool {
	start := time.Now()
	defer k.Stats.Remove.Record(start)
	return k.FS.Remove(t, path)
}

// ReadFile reads through h, recording the call's latency in Stats.
func (k *Kernel) ReadFile(h *openfile.Handle, buf []byte, n uint64, pos uint64) uint64 {
	start := time.Now()
	defer k.Stats.Read.Record(start)
	return h.ReadAt(buf, n, pos)
}

// WriteFile writes through h, recording the call's latency in Stats.
func (k *Kernel) WriteFile(h *openfile.Handle, buf []byte, n uint64, pos uint64) uint64 {
	start := time.Now()
	defer k.Stats.Write.Record(start)
	return h.WriteAt(buf, n, pos)
}

// Ps lists the pids of currently running processes.
func (k *Kernel) Ps() []common.Pid {
	k.procMu.Lock()
	defer k.procMu.Unlock()
	out := make([]common.Pid, 0, len(k.procs))
	for pid := range k.procs {
		out = append(out, pid)
	}
	return out
}
