// Package trap provides the interrupt/fault dispatch surface the core
// kernel packages are written against, standing in for the assembler trap
// stubs and PIC programming, both out of this core's scope.
package trap

import "sync"

// Regs stands in for the trap frame handed to an interrupt handler. Fault
// handling carries its own richer frame (vmm.FaultRegs); Regs here only
// needs to exist so IRQHandler has something to pass.
type Regs struct{}

// IRQHandler is anything dispatchable by IRQ number: the scheduler's
// timer and the disk driver's completion interrupt both implement it so
// Bus can treat them uniformly.
type IRQHandler interface {
	HandleIRQ(irq int, regs *Regs)
}

// IRQ line assignments.
const (
	IRQTimer = 0
	IRQDisk  = 14
)

// Bus is an IRQ-number to handler map standing in for the 8259 PIC.
type Bus struct {
	mu       sync.Mutex
	handlers map[int]IRQHandler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: map[int]IRQHandler{}}
}

// Register installs h as the handler for irq, replacing any previous one.
func (b *Bus) Register(irq int, h IRQHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[irq] = h
}

// Fire dispatches irq to its registered handler. An IRQ with no
// registered handler is simply dropped.
func (b *Bus) Fire(irq int, regs *Regs) {
	b.mu.Lock()
	h := b.handlers[irq]
	b.mu.Unlock()
	if h != nil {
		h.HandleIRQ(irq, regs)
	}
}
