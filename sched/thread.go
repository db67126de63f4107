// Package sched implements cooperative and round-robin preemptive thread
// scheduling on top of a FIFO ready queue.
package sched

import "kcore/defs"

// Thread is one schedulable unit: either a goroutine parked on resumeCh
// until the Scheduler hands it the baton, or a handle wrapping whichever
// goroutine already happens to be running (see NewIdleThread) — hosted
// Go's stand-in for a saved/restored machine context, since there is no
// real stack to switch.
type Thread struct {
	ID         defs.Tid_t
	Accounting *Accounting

	resumeCh chan struct{}
	done     chan struct{}
}

// Done returns a channel closed once the thread's body has returned.
// For idle threads, which have no body, the channel is never closed.
func (t *Thread) Done() <-chan struct{} { return t.done }
