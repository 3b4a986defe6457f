// Command nachos-shell is a small interactive line-oriented shell over the
// kernel core: it boots or formats a disk image and accepts
// ls/cat/md/cd/rm/rmdir/ps/check/run/stats/diskstats commands.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rodaine/table"

	"github.com/nachosfs/nachosfs/kernel"
	"github.com/nachosfs/nachosfs/synch"
	"github.com/nachosfs/nachosfs/vm/coremap"
)

func main() {
	diskPath := flag.String("disk", "", "disk image path (empty: in-memory disk)")
	format := flag.Bool("format", false, "format the disk before starting")
	numSectors := flag.Uint64("sectors", 4096, "disk size in sectors")
	numFrames := flag.Uint64("frames", 32, "number of physical frames")
	policy := flag.String("policy", "random", "replacement policy: random | fifo | clock")
	swapDir := flag.String("swap-dir", os.TempDir(), "directory for per-process SWAP.<pid> files")
	timed := flag.Bool("timed", false, "track disk I/O latency (see the diskstats command)")
	flag.Parse()

	cfg := kernel.Config{
		DiskPath:          *diskPath,
		NumSectors:        *numSectors,
		NumFrames:         *numFrames,
		ReplacementPolicy: parsePolicy(*policy),
		SwapDir:           *swapDir,
		Timed:             *timed,
	}

	var k *kernel.Kernel
	var err error
	if *format {
		k, err = kernel.Format(cfg)
	} else {
		k, err = kernel.Boot(cfg)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "nachos-shell:", err)
		os.Exit(1)
	}

	th := synch.NewThread("shell", 10)
	runShell(k, th, os.Stdin, os.Stdout)
}

func parsePolicy(s string) coremap.Policy {
	switch strings.ToLower(s) {
	case "fifo":
		return coremap.FIFO
	case "clock":
		return coremap.Clock
	default:
		return coremap.Random
	}
}

func runShell(k *kernel.Kernel, th *synch.Thread, in *os.File, out *os.File) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "nachos> ")
	for scanner.Scan() {
		dispatch(k, th, scanner.Text(), out)
		fmt.Fprint(out, "nachos> ")
	}
}

func dispatch(k *kernel.Kernel, th *synch.Thread, line string, out *os.File) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "ls":
		path := "."
		recursive := false
		for _, a := range args {
			if a == "-R" {
				recursive = true
				continue
			}
			path = a
		}
		listing, ok := k.FS.List(th, path, recursive)
		if !ok {
			fmt.Fprintln(out, "ls: no such directory")
			return
		}
		tbl := table.New("kind", "name")
		tbl.WithWriter(out)
		for _, e := range listing {
			kind := "f"
			if e.IsDir {
				kind = "d"
			}
			tbl.AddRow(kind, e.Name)
		}
		tbl.Print()

	case "cat":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: cat <path>")
			return
		}
		h, ok := k.Open(th, args[0])
		if !ok {
			fmt.Fprintln(out, "cat: no such file")
			return
		}
		buf := make([]byte, h.Length())
		k.ReadFile(h, buf, uint64(len(buf)), 0)
		k.CloseFile(th, h)
		out.Write(buf)
		fmt.Fprintln(out)

	case "md":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: md <path>")
			return
		}
		if !k.FS.CreateDir(th, args[0]) {
			fmt.Fprintln(out, "md: failed")
		}

	case "cd":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: cd <path>")
			return
		}
		if !k.FS.CD(th, args[0]) {
			fmt.Fprintln(out, "cd: no such directory")
		}

	case "rm":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: rm <path>")
			return
		}
		if !k.Remove(th, args[0]) {
			fmt.Fprintln(out, "rm: failed")
		}

	case "rmdir":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: rmdir <path>")
			return
		}
		if !k.FS.RemoveDir(th, args[0]) {
			fmt.Fprintln(out, "rmdir: failed (non-empty or not a directory)")
		}

	case "ps":
		tbl := table.New("pid")
		tbl.WithWriter(out)
		for _, pid := range k.Ps() {
			tbl.AddRow(pid)
		}
		tbl.Print()

	case "check":
		errs := k.FS.Check(th)
		if len(errs) == 0 {
			fmt.Fprintln(out, "check: ok")
			return
		}
		for _, e := range errs {
			fmt.Fprintln(out, "check:", e)
		}

	case "stats":
		k.Stats.WriteTable(out)

	case "diskstats":
		k.Disk.WriteTable(out)

	case "run":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: run <path>")
			return
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintln(out, "run:", err)
			return
		}
		pid, ok := k.Exec(raw)
		if !ok {
			fmt.Fprintln(out, "run: failed to load executable")
			return
		}
		fmt.Fprintln(out, "started pid", strconv.FormatUint(uint64(pid), 10))

	default:
		fmt.Fprintf(out, "%s: unknown command\n", cmd)
	}
}
