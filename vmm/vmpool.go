package vmm

import (
	"sync"

	"kcore/defs"
	"kcore/pmm"
	"kcore/util"
)

// Region is one allocated (or reserved) span of a VMPool's address range.
type Region struct {
	Base   uint32
	Length uint32
}

// VMPool manages a sub-range of virtual address space on behalf of one
// page table. Region 0 permanently reserves the pool's first page as its
// metadata page, so allocations start one page in; the region records
// themselves are kept in the regions slice, not written into that page.
type VMPool struct {
	mu sync.Mutex

	base      uint32
	size      uint32
	framePool *pmm.ContFramePool
	pt        *PageTable

	regions   []Region
	available uint32
}

// NewVMPool reserves the first page of [base, base+size) for the pool's
// own metadata and registers the pool with pt so HandleFault will accept
// addresses inside it.
func NewVMPool(base, size uint32, framePool *pmm.ContFramePool, pt *PageTable) *VMPool {
	vp := &VMPool{
		base:      base,
		size:      size,
		framePool: framePool,
		pt:        pt,
		regions:   []Region{{Base: base, Length: PGSIZE}},
		available: size - PGSIZE,
	}
	pt.RegisterPool(vp)
	return vp
}

// Allocate rounds n up to a whole number of pages and places a new region
// immediately after the previous one. It fails with ENOMEM when fewer
// than the rounded size remains available; there is no fragmentation
// recovery, so a released region's space is only reclaimed by shifting
// the region list, never by merging with a neighbor.
func (vp *VMPool) Allocate(n uint32) (uint32, error) {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	rounded := util.Roundup(n, PGSIZE)
	if vp.available < rounded {
		return 0, defs.ToError(defs.ENOMEM)
	}
	last := vp.regions[len(vp.regions)-1]
	start := last.Base + last.Length
	vp.regions = append(vp.regions, Region{Base: start, Length: rounded})
	vp.available -= rounded
	return start, nil
}

// Release locates the region whose base exactly matches startAddress
// (region 0, the metadata page, can never match), frees every page in it
// through the owning page table, and collapses the region list by
// shifting the later entries down. It fails with ENOREGN when no region
// matches.
func (vp *VMPool) Release(startAddress uint32) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	idx := -1
	for i, r := range vp.regions {
		if i > 0 && r.Base == startAddress {
			idx = i
			break
		}
	}
	if idx < 0 {
		return defs.ToError(defs.ENOREGN)
	}
	r := vp.regions[idx]
	for va := r.Base; va < r.Base+r.Length; va += PGSIZE {
		if err := vp.pt.FreePage(va); err != nil {
			return err
		}
	}
	vp.regions = append(vp.regions[:idx], vp.regions[idx+1:]...)
	vp.available += r.Length
	return nil
}

// IsLegitimate reports whether address falls inside this pool's window.
func (vp *VMPool) IsLegitimate(address uint32) bool {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return address >= vp.base && address < vp.base+vp.size
}

// Regions returns a snapshot of the pool's region list, base first
// (region 0 is always the reserved metadata page), for tests that assert
// the sorted, non-overlapping invariant directly.
func (vp *VMPool) Regions() []Region {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	out := make([]Region, len(vp.regions))
	copy(out, vp.regions)
	return out
}

// Available reports the number of unallocated bytes remaining.
func (vp *VMPool) Available() uint32 {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.available
}
