package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

/// Accounting accumulates per-thread CPU-time usage, the per-thread
/// analogue of the teaching kernel's process-wide Accnt_t.
type Accounting struct {
	/// Nanoseconds spent running.
	Runns int64
	/// Nanoseconds spent blocked (parked in Yield, including disk waits).
	Waitns int64
	sync.Mutex
}

func (a *Accounting) now() int64 { return time.Now().UnixNano() }

/// Runadd adds delta nanoseconds to the running-time counter.
///
/// @param delta Amount to add in nanoseconds.
func (a *Accounting) Runadd(delta int64) {
	atomic.AddInt64(&a.Runns, delta)
}

/// Waitadd adds delta nanoseconds to the blocked-time counter.
///
/// @param delta Amount to add in nanoseconds.
func (a *Accounting) Waitadd(delta int64) {
	atomic.AddInt64(&a.Waitns, delta)
}

/// Finish folds the time elapsed since start into the running-time
/// counter.
///
/// @param start Start timestamp in nanoseconds, from now().
func (a *Accounting) Finish(start int64) {
	a.Runadd(a.now() - start)
}

// Snapshot returns a consistent (runns, waitns) pair.
func (a *Accounting) Snapshot() (runns, waitns int64) {
	a.Lock()
	defer a.Unlock()
	return atomic.LoadInt64(&a.Runns), atomic.LoadInt64(&a.Waitns)
}
