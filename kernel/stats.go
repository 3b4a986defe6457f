// Stats tracks per-operation counts and latencies for the kernel's own
// operation set, rendered as a table via rodaine/table, plus a TLB-miss
// field. vm/pagefault counts its misses in its own Handler.Stats; nothing
// in this module increments Stats.TLBMisses.
package kernel

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// Op is one operation's running count and total latency.
type Op struct {
	count uint32
	nanos uint64
}

// Record adds one observation of duration since start.
func (op *Op) Record(start time.Time) {
	atomic.AddUint32(&op.count, 1)
	atomic.AddUint64(&op.nanos, uint64(time.Since(start).Nanoseconds()))
}

// MicrosPerOp reports the running average latency in microseconds.
func (op *Op) MicrosPerOp() float64 {
	count := atomic.LoadUint32(&op.count)
	if count == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&op.nanos)) / float64(count) / 1e3
}

// Stats is the kernel's operation counters: one Op per filesystem
// operation, plus a TLBMisses field that is rendered but not updated by
// the page-fault handler (see the package comment).
type Stats struct {
	Create Op
	Open   Op
	Close  Op
	Remove Op
	Read   Op
	Write  Op

	TLBMisses uint64
}

// WriteTable renders every counter as a row.
func (s *Stats) WriteTable(w io.Writer) {
	names := []string{"create", "open", "close", "remove", "read", "write"}
	ops := []*Op{&s.Create, &s.Open, &s.Close, &s.Remove, &s.Read, &s.Write}

	tbl := table.New("op", "count", "us/op")
	var totalCount uint32
	var totalNanos uint64
	for i, name := range names {
		count := atomic.LoadUint32(&ops[i].count)
		nanos := atomic.LoadUint64(&ops[i].nanos)
		totalCount += count
		totalNanos += nanos
		tbl.AddRow(name, count, fmt.Sprintf("%0.1f", ops[i].MicrosPerOp()))
	}
	tbl.AddRow("total", totalCount, fmt.Sprintf("%0.1f us total", float64(totalNanos)/1e3))
	tbl.AddRow("tlb-misses", atomic.LoadUint64(&s.TLBMisses), "")
	tbl.WithWriter(w)
	tbl.Print()
}
