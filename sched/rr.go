package sched

import (
	"sync"

	"kcore/defs"
	"kcore/trap"
)

// DefaultHz is the teaching kernel's default quantum.
const DefaultHz = 5

// RRScheduler adds timer-driven preemption on top of Scheduler's
// cooperative FIFO: a tick counter advances on every timer IRQ, and once
// it reaches the configured quantum the currently running thread is
// marked for rotation.
//
// A real CPU delivers the timer interrupt on the running thread's own
// stack, so "resume(current); yield()" executes as that thread's own
// code. Hosted Go has no equivalent: a goroutine cannot be paused from
// outside at an arbitrary point. RRScheduler therefore splits the
// operation in two: HandleIRQ (run from whatever drives the timer, see
// trap.Timer) only does the tick bookkeeping and raises a pending-rotate
// flag; Checkpoint, called by the running thread itself between units of
// work, is where the actual resume+yield happens.
type RRScheduler struct {
	*Scheduler

	mu         sync.Mutex
	ticks      int
	hz         int
	hasPending bool
	pendingFor defs.Tid_t
}

var _ trap.IRQHandler = (*RRScheduler)(nil)

// NewRR builds an RRScheduler with the given quantum (in ticks of
// whatever timer drives bus's IRQTimer line; hz <= 0 defaults to
// DefaultHz) and registers it on bus as the timer IRQ handler.
func NewRR(bus *trap.Bus, hz int) *RRScheduler {
	if hz <= 0 {
		hz = DefaultHz
	}
	rr := &RRScheduler{Scheduler: NewScheduler(), hz: hz}
	bus.Register(trap.IRQTimer, rr)
	return rr
}

// HandleIRQ implements trap.IRQHandler for the timer line. It advances
// the tick counter and, once the quantum elapses, marks the currently
// dispatched thread pending for rotation at its next Checkpoint call.
func (rr *RRScheduler) HandleIRQ(irq int, regs *trap.Regs) {
	cur := rr.Current()

	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.ticks++
	if rr.ticks < rr.hz {
		return
	}
	rr.ticks = 0
	if cur != nil {
		rr.hasPending = true
		rr.pendingFor = cur.ID
	}
}

// Checkpoint lets the running thread self cooperate with preemptive
// rotation. If the quantum elapsed since self was dispatched, Checkpoint
// performs the documented "resume(current); yield()" handoff on self's behalf;
// otherwise it returns immediately.
func (rr *RRScheduler) Checkpoint(self *Thread) {
	rr.mu.Lock()
	fire := rr.hasPending && rr.pendingFor == self.ID
	if fire {
		rr.hasPending = false
	}
	rr.mu.Unlock()

	if fire {
		rr.Resume(self)
		rr.Yield(self)
	}
}
