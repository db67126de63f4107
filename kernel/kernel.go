// Package kernel wires the core subsystems together into a single
// value, replacing biscuit's package-level globals (mem.Physmem,
// limits.Syslimit) with explicit state an embedder constructs and
// passes around.
package kernel

import (
	"time"

	"kcore/disk"
	"kcore/fs"
	"kcore/pmm"
	"kcore/sched"
	"kcore/trap"
	"kcore/vmm"
)

// Config holds the boot-time parameters every subsystem needs, taking
// the place of a config file the kernel-core domain has no use for.
type Config struct {
	KernelBaseFrame, KernelFrames   uint32
	ProcessBaseFrame, ProcessFrames uint32
	SharedSize                      uint32 // identity-mapped region, in bytes

	SchedulerHz int

	DiskImagePath string
	DiskLatency   time.Duration
	DiskBlocks    uint32 // total usable blocks, passed to fs.Format
	FormatOnBoot  bool
}

// Kernel owns every process-wide singleton: the two frame pools, the
// page table, the preemptive scheduler, the timer, the IRQ bus, the
// disk client, and the mounted file system.
type Kernel struct {
	KernelPool  *pmm.ContFramePool
	ProcessPool *pmm.ContFramePool
	PageTable   *vmm.PageTable

	Bus   *trap.Bus
	Timer *trap.Timer
	Sched *sched.RRScheduler

	Disk *disk.NonBlockingDisk
	FS   *fs.FileSystem
}

// Boot constructs every subsystem per cfg, formatting or mounting the
// disk image as requested, and returns the assembled Kernel.
func Boot(cfg Config) (*Kernel, error) {
	kernelPool, errno := pmm.New(cfg.KernelBaseFrame, cfg.KernelFrames, 0)
	if errno != 0 {
		return nil, errno
	}
	processPool, errno := pmm.New(cfg.ProcessBaseFrame, cfg.ProcessFrames, 0)
	if errno != 0 {
		return nil, errno
	}

	pt, err := vmm.New(kernelPool, processPool, cfg.SharedSize)
	if err != nil {
		return nil, err
	}

	bus := trap.NewBus()
	timer := trap.NewTimer(bus, cfg.SchedulerHz)
	rr := sched.NewRR(bus, cfg.SchedulerHz)

	backing, err := disk.NewSimpleDisk(cfg.DiskImagePath)
	if err != nil {
		return nil, err
	}
	nbd := disk.NewNonBlockingDisk(backing, rr.Scheduler, bus, cfg.DiskLatency)

	var filesystem *fs.FileSystem
	if cfg.FormatOnBoot {
		filesystem, err = fs.Format(backing, cfg.DiskBlocks)
	} else {
		filesystem, err = fs.Mount(backing)
	}
	if err != nil {
		return nil, err
	}

	return &Kernel{
		KernelPool:  kernelPool,
		ProcessPool: processPool,
		PageTable:   pt,
		Bus:         bus,
		Timer:       timer,
		Sched:       rr,
		Disk:        nbd,
		FS:          filesystem,
	}, nil
}

// Shutdown stops the timer and releases the disk's backing file. It
// does not touch the scheduler's parked goroutines — this core has
// no notion of kernel shutdown, only thread termination.
func (k *Kernel) Shutdown() error {
	k.Timer.Stop()
	return k.Disk.Close()
}
