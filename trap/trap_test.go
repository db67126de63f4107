package trap

import (
	"sync"
	"testing"
)

// recordingHandler is shared with timer_test.go, where Fire runs on the
// Timer's own goroutine: Lock/Len guard against the test goroutine
// reading fired concurrently with a tick.
type recordingHandler struct {
	mu    sync.Mutex
	fired []int
}

func (r *recordingHandler) HandleIRQ(irq int, regs *Regs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, irq)
}

func (r *recordingHandler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestBusDispatchesToRegisteredHandler(t *testing.T) {
	b := NewBus()
	h := &recordingHandler{}
	b.Register(IRQDisk, h)
	b.Fire(IRQDisk, &Regs{})
	b.Fire(IRQTimer, &Regs{}) // no handler registered for IRQTimer: dropped

	if h.Len() != 1 || h.fired[0] != IRQDisk {
		t.Fatalf("expected exactly one dispatch to IRQDisk, got %v", h.fired)
	}
}

func TestRegisterReplacesPreviousHandler(t *testing.T) {
	b := NewBus()
	first := &recordingHandler{}
	second := &recordingHandler{}
	b.Register(IRQTimer, first)
	b.Register(IRQTimer, second)
	b.Fire(IRQTimer, &Regs{})

	if first.Len() != 0 {
		t.Fatalf("expected the replaced handler to receive nothing")
	}
	if second.Len() != 1 {
		t.Fatalf("expected the replacement handler to receive the dispatch")
	}
}
