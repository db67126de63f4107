// Package vmm implements two-level x86 demand-paged virtual memory: a
// PageTable resolving faults against a per-instance list of VMPool regions.
package vmm

import (
	"fmt"
	"sync"
	"unsafe"

	"kcore/defs"
	"kcore/pmm"
)

const (
	PGSHIFT = pmm.PGSHIFT
	PGSIZE  = pmm.PGSIZE

	pdshift    = 22
	nPTEntries = 1024

	PTE_P = 1 << 0
	PTE_W = 1 << 1
	PTE_U = 1 << 2
)

func pdIndex(va uint32) uint32 { return va >> pdshift }
func ptIndex(va uint32) uint32 { return (va >> PGSHIFT) & (nPTEntries - 1) }

// asTable reinterprets a frame's backing storage as 1024 page-table-entry
// slots, mirroring biscuit's Pg2bytes/unsafe.Pointer cast of a Pmap_t.
func asTable(f *pmm.Frame) *[nPTEntries]uint32 {
	return (*[nPTEntries]uint32)(unsafe.Pointer(f))
}

// FaultRegs carries the decoded contents of a page-fault trap frame: the
// faulting address (CR2) and the decoded err_code bits.
type FaultRegs struct {
	Addr    uint32
	Present bool
	Write   bool
	User    bool
}

// PageFaultHandler is the trait a trap dispatcher expects of anything that
// resolves #PF. PageTable is the only implementation in this kernel.
type PageFaultHandler interface {
	HandleFault(regs *FaultRegs) error
}

// PageTable is one process's address space: a page directory, the page
// tables it reaches, and the VMPool regions registered against it.
type PageTable struct {
	mu sync.Mutex

	kernelPool  *pmm.ContFramePool
	processPool *pmm.ContFramePool
	sharedSize  uint32

	dirFrame uint32
	pools    []*VMPool
	mapped   int
}

var _ PageFaultHandler = (*PageTable)(nil)

// New allocates a page directory and the page table(s) needed to
// identity-map the first sharedSize bytes with Present|RW. The directory's
// last entry is self-referencing so the directory and every page table it
// owns are reachable by recursive virtual address once paging is live;
// every other entry carries RW but not Present, per the convention the
// fault handler relies on to distinguish "never touched" from "mapped".
func New(kernelPool, processPool *pmm.ContFramePool, sharedSize uint32) (*PageTable, error) {
	dirFrame, errno := kernelPool.GetFrames(1)
	if errno != 0 {
		return nil, defs.ToError(errno)
	}
	dir := asTable(pmm.Zero(dirFrame))
	for i := range dir {
		dir[i] = PTE_W
	}
	dir[nPTEntries-1] = (dirFrame << PGSHIFT) | PTE_P | PTE_W

	pt := &PageTable{
		kernelPool:  kernelPool,
		processPool: processPool,
		sharedSize:  sharedSize,
		dirFrame:    dirFrame,
	}

	npages := sharedSize / PGSIZE
	for i := uint32(0); i < npages; i++ {
		va := i * PGSIZE
		pte, err := pt.walk(va, true)
		if err != nil {
			return nil, err
		}
		*pte = (i << PGSHIFT) | PTE_P | PTE_W
		pt.mapped++
	}
	return pt, nil
}

// walk returns a pointer into the backing page-table-entry slot for va,
// allocating an intermediate page-table frame from the kernel pool when
// create is true and the directory entry is absent.
func (pt *PageTable) walk(va uint32, create bool) (*uint32, error) {
	dir := asTable(pmm.Dmap(pt.dirFrame))
	pdi := pdIndex(va)
	if dir[pdi]&PTE_P == 0 {
		if !create {
			return nil, nil
		}
		ptFrame, errno := pt.kernelPool.GetFrames(1)
		if errno != 0 {
			return nil, defs.ToError(errno)
		}
		pmm.Zero(ptFrame)
		dir[pdi] = (ptFrame << PGSHIFT) | PTE_P | PTE_W
	}
	table := asTable(pmm.Dmap(dir[pdi] >> PGSHIFT))
	return &table[ptIndex(va)], nil
}

// Load installs pt as the active address space, the host stand-in for
// writing CR3.
func (pt *PageTable) Load() { active = pt }

// EnablePaging is a no-op in this host rewrite: there is no CR0.PG to set,
// HandleFault is always reachable once a PageTable exists.
func (pt *PageTable) EnablePaging() {}

var active *PageTable

// Active returns the PageTable last installed with Load, or nil.
func Active() *PageTable { return active }

// RegisterPool appends vp to this instance's VMPool list, used by
// HandleFault to decide whether a faulting address is legitimate.
func (pt *PageTable) RegisterPool(vp *VMPool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pools = append(pt.pools, vp)
}

// HandleFault resolves a page fault. Present-bit faults (protection
// violations), addresses rejected by every registered VMPool, and frame
// allocation failure are all fatal: there is no instruction to resume into
// once the fault handler itself cannot make progress.
func (pt *PageTable) HandleFault(regs *FaultRegs) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if regs.Present {
		panic(fmt.Sprintf("vmm: protection fault at %#x", regs.Addr))
	}

	if len(pt.pools) > 0 {
		legit := false
		for _, vp := range pt.pools {
			if vp.IsLegitimate(regs.Addr) {
				legit = true
				break
			}
		}
		if !legit {
			panic(fmt.Sprintf("vmm: fault at unregistered address %#x", regs.Addr))
		}
	}

	va := regs.Addr &^ (PGSIZE - 1)
	pte, err := pt.walk(va, true)
	if err != nil {
		panic(fmt.Sprintf("vmm: allocation failure resolving fault at %#x: %v", regs.Addr, err))
	}
	if *pte&PTE_P != 0 {
		// already resolved by a racing fault on the same address
		return nil
	}

	frame, errno := pt.processPool.GetFrames(1)
	if errno != 0 {
		panic(fmt.Sprintf("vmm: allocation failure resolving fault at %#x: %v", regs.Addr, defs.ToError(errno)))
	}
	pmm.Zero(frame)

	flags := uint32(PTE_P | PTE_W)
	if regs.User {
		flags |= PTE_U
	}
	*pte = (frame << PGSHIFT) | flags
	pt.mapped++
	pt.invalidate(regs.Addr)
	return nil
}

// invalidate is the host stand-in for invlpg; there is no real TLB to
// flush, so it exists only so callers read the same as the teaching kernel.
func (pt *PageTable) invalidate(va uint32) {}

// FreePage releases the data frame backing the page at virtualPage,
// clears its Present bit, and flushes the stand-in TLB. Freeing an
// already-unmapped page is a no-op.
func (pt *PageTable) FreePage(virtualPage uint32) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	va := virtualPage &^ (PGSIZE - 1)
	pte, err := pt.walk(va, false)
	if err != nil {
		return err
	}
	if pte == nil || *pte&PTE_P == 0 {
		return nil
	}
	frame := *pte >> PGSHIFT
	if errno := pmm.Release(frame); errno != 0 {
		return defs.ToError(errno)
	}
	*pte = 0
	pt.mapped--
	pt.invalidate(va)
	return nil
}

// Stats returns the number of currently mapped (Present) pages, counting
// both the identity-mapped shared region and demand-faulted pages.
func (pt *PageTable) Stats() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.mapped
}
