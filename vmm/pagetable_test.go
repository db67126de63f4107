package vmm

import (
	"testing"

	"kcore/pmm"
)

func freshPools(t *testing.T) (*pmm.ContFramePool, *pmm.ContFramePool) {
	t.Helper()
	kp, errno := pmm.New(nextTestBase(256), 256, 1)
	if errno != 0 {
		t.Fatalf("kernel pool: %v", errno)
	}
	pp, errno := pmm.New(nextTestBase(256), 256, 1)
	if errno != 0 {
		t.Fatalf("process pool: %v", errno)
	}
	return kp, pp
}

func TestNewIdentityMapsSharedRegion(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, 4*PGSIZE)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := pt.Stats(); got != 4 {
		t.Fatalf("expected 4 mapped pages after New, got %d", got)
	}
}

func TestHandleFaultAllocatesOnDemand(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := pt.Stats()
	if err := pt.HandleFault(&FaultRegs{Addr: 0x400000, User: true}); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if pt.Stats() != before+1 {
		t.Fatalf("expected exactly one new mapping")
	}
	// second fault on the same page is idempotent: no new frame handed out
	if err := pt.HandleFault(&FaultRegs{Addr: 0x400000, User: true}); err != nil {
		t.Fatalf("second HandleFault: %v", err)
	}
	if pt.Stats() != before+1 {
		t.Fatalf("expected fault on already-mapped page to be a no-op")
	}
}

func TestHandleFaultProtectionFaultPanics(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, PGSIZE)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a present-bit protection fault")
		}
	}()
	pt.HandleFault(&FaultRegs{Addr: 0, Present: true})
}

func TestHandleFaultUnregisteredAddressPanics(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	NewVMPool(0x1000000, 4*PGSIZE, pp, pt)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for an address outside every registered pool")
		}
	}()
	pt.HandleFault(&FaultRegs{Addr: 0x2000000, User: true})
}

func TestFreePageIsInverseOfFault(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pt.HandleFault(&FaultRegs{Addr: 0x500000, User: true}); err != nil {
		t.Fatalf("HandleFault: %v", err)
	}
	if err := pt.FreePage(0x500000); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if pt.Stats() != 0 {
		t.Fatalf("expected 0 mapped pages after FreePage, got %d", pt.Stats())
	}
	// freeing an already-unmapped page is a no-op, not an error
	if err := pt.FreePage(0x500000); err != nil {
		t.Fatalf("FreePage on unmapped page: %v", err)
	}
}

func TestLoadTracksActivePageTable(t *testing.T) {
	kp, pp := freshPools(t)
	pt, err := New(kp, pp, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pt.Load()
	if Active() != pt {
		t.Fatalf("expected Load to install pt as Active()")
	}
}
