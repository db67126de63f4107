package vmm

import (
	"testing"

	"kcore/pmm"
)

func freshPoolAndTable(t *testing.T) (*pmm.ContFramePool, *PageTable) {
	t.Helper()
	kp, errno := pmm.New(nextTestBase(64), 64, 1)
	if errno != 0 {
		t.Fatalf("kernel pool: %v", errno)
	}
	pp, errno := pmm.New(nextTestBase(64), 64, 1)
	if errno != 0 {
		t.Fatalf("process pool: %v", errno)
	}
	pt, err := New(kp, pp, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pp, pt
}

func TestVMPoolReservesMetadataPage(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	if got := vp.Available(); got != 15*PGSIZE {
		t.Fatalf("expected size-4096 available, got %d", got)
	}
	regions := vp.Regions()
	if len(regions) != 1 || regions[0].Base != 0x40000000 || regions[0].Length != PGSIZE {
		t.Fatalf("expected a single reserved metadata region, got %v", regions)
	}
}

func TestVMPoolAllocatePacksContiguously(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	a, err := vp.Allocate(PGSIZE)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a != 0x40000000+PGSIZE {
		t.Fatalf("expected first region right after the metadata page, got %#x", a)
	}
	b, err := vp.Allocate(2000) // rounds up to one page
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if b != a+PGSIZE {
		t.Fatalf("expected second region packed immediately after the first, got %#x", b)
	}
}

func TestVMPoolAllocateExhaustion(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 2*PGSIZE, pp, pt)

	if _, err := vp.Allocate(2 * PGSIZE); err == nil {
		t.Fatalf("expected allocation larger than available to fail")
	}
}

func TestVMPoolReleaseFreesPagesAndCollapsesList(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	a, _ := vp.Allocate(2 * PGSIZE)
	// touch both pages of region a so there is something to free
	if err := pt.HandleFault(&FaultRegs{Addr: a, User: true}); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if err := pt.HandleFault(&FaultRegs{Addr: a + PGSIZE, User: true}); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	mappedBefore := pt.Stats()

	if err := vp.Release(a); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if pt.Stats() != mappedBefore-2 {
		t.Fatalf("expected both pages unmapped after Release")
	}
	if len(vp.Regions()) != 1 {
		t.Fatalf("expected the region list to collapse back to just the metadata region")
	}
	if vp.Available() != 15*PGSIZE {
		t.Fatalf("expected available to grow back by the released region's size")
	}
}

func TestVMPoolReleaseNoMatchFails(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	if err := vp.Release(0x41234000); err == nil {
		t.Fatalf("expected release of a non-matching address to fail")
	}
}

func TestVMPoolReleaseMetadataRegionFails(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	if err := vp.Release(0x40000000); err == nil {
		t.Fatalf("expected releasing the reserved metadata region to fail")
	}
}

func TestVMPoolIsLegitimate(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	if !vp.IsLegitimate(0x40000000) {
		t.Fatalf("expected base address to be legitimate")
	}
	if vp.IsLegitimate(0x40000000 + 16*PGSIZE) {
		t.Fatalf("expected address at size boundary to be illegitimate")
	}
	if vp.IsLegitimate(0x50000000) {
		t.Fatalf("expected unrelated address to be illegitimate")
	}
}

func TestHandleFaultAcceptsRegisteredPoolAddress(t *testing.T) {
	pp, pt := freshPoolAndTable(t)
	vp := NewVMPool(0x40000000, 16*PGSIZE, pp, pt)

	a, err := vp.Allocate(PGSIZE)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := pt.HandleFault(&FaultRegs{Addr: a, User: true}); err != nil {
		t.Fatalf("HandleFault on a pool-legitimate address: %v", err)
	}
}
