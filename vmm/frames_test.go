package vmm

import "sync/atomic"

// nextTestBase hands out disjoint frame-number ranges for tests in this
// package to build fresh pmm pools from: pmm's global registry (by
// design, see pmm.Release) is never cleared between tests, so two pools
// sharing a frame range would make Release find the wrong one. Ranges
// stay below frame 0x100000 so every frame number fits a 32-bit PTE.
var nextTestFrameBase uint64 = 0x10000

func nextTestBase(n uint32) uint32 {
	return uint32(atomic.AddUint64(&nextTestFrameBase, uint64(n)) - uint64(n))
}
