package sched

import (
	"container/list"
	"sync"

	"kcore/defs"
)

// Scheduler is a cooperative, strict-FIFO ready queue of Threads.
type Scheduler struct {
	mu      sync.Mutex
	ready   *list.List // of *Thread
	current *Thread
	nextID  uint64
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{ready: list.New()}
}

func (s *Scheduler) allocThread() *Thread {
	s.mu.Lock()
	s.nextID++
	id := defs.Tid_t(s.nextID)
	s.mu.Unlock()
	return &Thread{
		ID:         id,
		Accounting: &Accounting{},
		resumeCh:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// NewThread allocates a Thread and spawns its body in its own goroutine,
// parked on its resume channel until the scheduler first switches to it.
// fn receives the Thread's own handle so its body can Yield/Resume itself.
func (s *Scheduler) NewThread(fn func(self *Thread)) *Thread {
	t := s.allocThread()
	go func() {
		<-t.resumeCh
		start := t.Accounting.now()
		fn(t)
		t.Accounting.Finish(start)
		close(t.done)
	}()
	return t
}

// NewIdleThread allocates a Thread handle with no goroutine of its own,
// for a caller (the boot/idle context) that wants to participate in
// scheduling using its own call stack rather than a spawned body.
func (s *Scheduler) NewIdleThread() *Thread {
	return s.allocThread()
}

// Add enqueues t at the tail of the ready queue. A nil thread is a no-op.
func (s *Scheduler) Add(t *Thread) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.ready.PushBack(t)
	s.mu.Unlock()
}

// Resume enqueues t at the tail of the ready queue, identical to Add;
// Add and Resume name the same FIFO-enqueue operation.
func (s *Scheduler) Resume(t *Thread) { s.Add(t) }

// Yield dequeues the head of the ready queue and switches to it: the
// next thread's resumeCh is signaled and the caller (self) blocks on its
// own resumeCh until something resumes it again. If the queue is empty,
// self keeps running and Yield returns immediately. Yield never
// re-enqueues self; a caller that wants to stay runnable must call
// Resume(self) before yielding. The time self spends parked waiting to
// be resumed is charged to its own Accounting.Waitns.
func (s *Scheduler) Yield(self *Thread) {
	s.mu.Lock()
	elem := s.ready.Front()
	if elem == nil {
		s.mu.Unlock()
		return
	}
	next := s.ready.Remove(elem).(*Thread)
	s.current = next
	s.mu.Unlock()

	next.resumeCh <- struct{}{}
	start := self.Accounting.now()
	<-self.resumeCh
	self.Accounting.Waitadd(self.Accounting.now() - start)
}

// Terminate removes t from the ready queue by id, O(n) in queue length.
// Absence is not an error: it means t is the thread currently running.
func (s *Scheduler) Terminate(t *Thread) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.ready.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread).ID == t.ID {
			s.ready.Remove(e)
			return
		}
	}
}

// Current returns the thread last switched to by Yield, or nil before
// the first switch and before Bootstrap.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Bootstrap installs self as Current without an intervening Yield, for
// the initial thread that was never Added to the ready queue.
func (s *Scheduler) Bootstrap(self *Thread) {
	s.mu.Lock()
	s.current = self
	s.mu.Unlock()
}

// Len reports the number of threads currently waiting in the ready queue.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len()
}
