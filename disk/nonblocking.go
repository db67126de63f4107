package disk

import (
	"container/list"
	"sync"
	"time"

	"kcore/sched"
	"kcore/trap"
)

// Request describes one in-flight disk operation, the block/op pair
// biscuit's fs/blk.go bundles into a Bdev_req_t alongside the waiting
// side's handle — here the parked thread rather than an ack channel,
// since NonBlockingDisk resumes threads through the scheduler instead.
type Request struct {
	Block uint32
	Write bool
	Self  *sched.Thread
}

// Queue is a dedup-on-push FIFO of parked threads, the same
// list.List-wrapping shape as biscuit's BlkList_t but holding
// *sched.Thread instead of *Bdev_block_t.
type Queue struct {
	l *list.List // of *sched.Thread
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{l: list.New()}
}

// Len returns the number of threads currently queued.
func (q *Queue) Len() int {
	return q.l.Len()
}

// Contains reports whether t is already queued.
func (q *Queue) Contains(t *sched.Thread) bool {
	for e := q.l.Front(); e != nil; e = e.Next() {
		if e.Value.(*sched.Thread) == t {
			return true
		}
	}
	return false
}

// PushBack appends t unless it is already queued.
func (q *Queue) PushBack(t *sched.Thread) {
	if !q.Contains(t) {
		q.l.PushBack(t)
	}
}

// Remove drops t from the queue if present, reporting whether it was
// found.
func (q *Queue) Remove(t *sched.Thread) bool {
	for e := q.l.Front(); e != nil; e = e.Next() {
		if e.Value.(*sched.Thread) == t {
			q.l.Remove(e)
			return true
		}
	}
	return false
}

// PopFront removes and returns the head of the queue, or nil if empty.
func (q *Queue) PopFront() *sched.Thread {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	return q.l.Remove(e).(*sched.Thread)
}

// NonBlockingDisk replaces SimpleDisk's poll-on-BSY with park-and-wait:
// an operation marks the controller busy for an injected latency (the
// host stand-in for real seek/transfer time) and wait_while_busy parks
// the calling thread on the scheduler instead of spinning.
type NonBlockingDisk struct {
	*SimpleDisk

	sched   *sched.Scheduler
	bus     *trap.Bus
	latency time.Duration

	mu       sync.Mutex
	busy     bool
	inFlight *Request
	blocked  *Queue
}

var _ trap.IRQHandler = (*NonBlockingDisk)(nil)

// NewNonBlockingDisk wraps backing, hooks IRQ14 on bus, and injects
// latency before each operation's completion interrupt fires.
func NewNonBlockingDisk(backing *SimpleDisk, sch *sched.Scheduler, bus *trap.Bus, latency time.Duration) *NonBlockingDisk {
	d := &NonBlockingDisk{
		SimpleDisk: backing,
		sched:      sch,
		bus:        bus,
		latency:    latency,
		blocked:    NewQueue(),
	}
	bus.Register(trap.IRQDisk, d)
	return d
}

// startOp marks the controller busy with req in flight and schedules the
// completion interrupt after the injected latency.
func (d *NonBlockingDisk) startOp(req *Request) {
	d.mu.Lock()
	d.busy = true
	d.inFlight = req
	d.mu.Unlock()
	go func() {
		time.Sleep(d.latency)
		d.bus.Fire(trap.IRQDisk, &trap.Regs{})
	}()
}

// waitWhileBusy parks self until the controller reports not-busy,
// re-checking after every resume since the interrupt may race ahead of
// self actually reaching the blocked queue (Queue.PushBack suppresses
// the duplicate). A nil self or nil scheduler — booting, before any
// thread exists — falls back to a plain busy-loop.
func (d *NonBlockingDisk) waitWhileBusy(self *sched.Thread) {
	for {
		d.mu.Lock()
		busy := d.busy
		if !busy {
			d.mu.Unlock()
			return
		}
		if self == nil || d.sched == nil {
			d.mu.Unlock()
			continue
		}
		d.blocked.PushBack(self)
		d.mu.Unlock()

		d.sched.Yield(self)

		d.mu.Lock()
		d.blocked.Remove(self)
		d.mu.Unlock()
	}
}

// HandleIRQ implements trap.IRQHandler for IRQ14. It clears busy,
// dequeues the head of the blocked queue, and resumes exactly that one
// thread per ready-edge; spurious or early edges with no blocked thread
// are simply dropped. waitWhileBusy's own Remove is then a no-op for the
// thread HandleIRQ already popped, and only matters for a thread that
// re-checks busy before ever being parked.
func (d *NonBlockingDisk) HandleIRQ(irq int, regs *trap.Regs) {
	d.mu.Lock()
	d.busy = false
	d.inFlight = nil
	woken := d.blocked.PopFront()
	d.mu.Unlock()
	if woken != nil && d.sched != nil {
		d.sched.Resume(woken)
	}
}

// Read transfers BlockSize bytes from block into buf, parking self
// instead of polling BSY.
func (d *NonBlockingDisk) Read(block uint32, buf []byte, self *sched.Thread) error {
	d.startOp(&Request{Block: block, Write: false, Self: self})
	d.waitWhileBusy(self)
	return d.SimpleDisk.Read(block, buf)
}

// Write transfers BlockSize bytes from buf to block, parking self
// instead of polling BSY.
func (d *NonBlockingDisk) Write(block uint32, buf []byte, self *sched.Thread) error {
	d.startOp(&Request{Block: block, Write: true, Self: self})
	d.waitWhileBusy(self)
	return d.SimpleDisk.Write(block, buf)
}
