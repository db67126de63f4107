package sched

import (
	"testing"
	"time"

	"kcore/trap"
)

func TestRRQuantumMarksCurrentThreadPending(t *testing.T) {
	bus := trap.NewBus()
	rr := NewRR(bus, 2) // 2-tick quantum

	idle := rr.NewIdleThread()
	resumed := make(chan struct{}, 1)
	ticked := make(chan struct{})
	checked := make(chan struct{})
	worker := rr.NewThread(func(self *Thread) {
		resumed <- struct{}{}
		<-ticked
		// consumes the pending rotation; with no peer ready, Yield
		// dispatches the worker itself again and Checkpoint returns
		rr.Checkpoint(self)
		close(checked)
	})
	rr.Add(worker)

	go rr.Yield(idle)
	<-resumed // worker is now Current()

	if rr.Current() != worker {
		t.Fatalf("expected worker to be Current after dispatch")
	}

	bus.Fire(trap.IRQTimer, &trap.Regs{}) // tick 1: below quantum
	rr.mu.Lock()
	pending := rr.hasPending
	rr.mu.Unlock()
	if pending {
		t.Fatalf("expected no pending rotation before the quantum elapses")
	}
	bus.Fire(trap.IRQTimer, &trap.Regs{}) // tick 2: quantum elapses, worker marked pending
	rr.mu.Lock()
	pending = rr.hasPending && rr.pendingFor == worker.ID
	rr.mu.Unlock()
	if !pending {
		t.Fatalf("expected the worker to be marked pending once the quantum elapsed")
	}

	close(ticked)
	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the worker's Checkpoint to return")
	}
	rr.mu.Lock()
	pending = rr.hasPending
	rr.mu.Unlock()
	if pending {
		t.Fatalf("expected Checkpoint to consume the pending rotation")
	}
}

func TestCheckpointIsNoOpWithoutPendingRotation(t *testing.T) {
	bus := trap.NewBus()
	rr := NewRR(bus, 100)
	idle := rr.NewIdleThread()
	rr.Bootstrap(idle)
	rr.Checkpoint(idle) // no pending rotation: must return immediately, not block
	if rr.Len() != 0 {
		t.Fatalf("expected Checkpoint to be a no-op when no rotation is pending")
	}
}

func TestRRHandleIRQIgnoresNilCurrent(t *testing.T) {
	bus := trap.NewBus()
	NewRR(bus, 1)
	// No thread has ever been dispatched: Current() is nil. Firing the
	// timer must not panic.
	bus.Fire(trap.IRQTimer, &trap.Regs{})
}

func TestDefaultHzIsUsedWhenUnset(t *testing.T) {
	bus := trap.NewBus()
	rr := NewRR(bus, 0)
	if rr.hz != DefaultHz {
		t.Fatalf("expected hz to default to %d, got %d", DefaultHz, rr.hz)
	}
}
