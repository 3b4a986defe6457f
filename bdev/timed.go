package bdev

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// op is one operation's running count and total latency.
type op struct {
	count uint32
	nanos uint64
}

func (o *op) record(start time.Time) {
	atomic.AddUint32(&o.count, 1)
	atomic.AddUint64(&o.nanos, uint64(time.Since(start).Nanoseconds()))
}

func (o *op) microsPerOp() float64 {
	count := atomic.LoadUint32(&o.count)
	if count == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&o.nanos)) / float64(count) / 1e3
}

func (o *op) reset() {
	atomic.StoreUint32(&o.count, 0)
	atomic.StoreUint64(&o.nanos, 0)
}

// opStats is a Device's optional per-operation latency counters, folded
// directly into Device rather than kept as a separate wrapper type so every
// caller already holding a *Device gets instrumentation for free once
// EnableStats is called.
type opStats struct {
	read, write, barrier op
}

// EnableStats turns on per-operation latency tracking for dv. Call once,
// before the device is shared across goroutines.
func (dv *Device) EnableStats() {
	dv.stats = &opStats{}
}

// WriteTable renders read/write/barrier counts and average latencies. A
// no-op if EnableStats was never called.
func (dv *Device) WriteTable(w io.Writer) {
	if dv.stats == nil {
		return
	}
	tbl := table.New("op", "count", "us/op")
	tbl.AddRow("read", atomic.LoadUint32(&dv.stats.read.count), fmt.Sprintf("%0.1f", dv.stats.read.microsPerOp()))
	tbl.AddRow("write", atomic.LoadUint32(&dv.stats.write.count), fmt.Sprintf("%0.1f", dv.stats.write.microsPerOp()))
	tbl.AddRow("barrier", atomic.LoadUint32(&dv.stats.barrier.count), fmt.Sprintf("%0.1f", dv.stats.barrier.microsPerOp()))
	tbl.WithWriter(w)
	tbl.Print()
}

// ResetStats zeroes every counter.
func (dv *Device) ResetStats() {
	if dv.stats == nil {
		return
	}
	dv.stats.read.reset()
	dv.stats.write.reset()
	dv.stats.barrier.reset()
}
