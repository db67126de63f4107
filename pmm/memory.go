package pmm

import "sync"

// Frame is the backing storage for one physical page frame. Hosted Go has
// no direct-mapped physical memory window, so this is the stand-in biscuit
// would reach via mem.Physmem.Dmap.
type Frame [PGSIZE]byte

var (
	memMu sync.Mutex
	mem   = map[uint32]*Frame{}
)

// Dmap returns the backing storage for frameNo, allocating a zero-filled
// Frame on first access. Callers that have not allocated frameNo through a
// ContFramePool are accessing it out of band, same as a direct-map read of
// unowned physical memory.
func Dmap(frameNo uint32) *Frame {
	memMu.Lock()
	defer memMu.Unlock()
	f, ok := mem[frameNo]
	if !ok {
		f = &Frame{}
		mem[frameNo] = f
	}
	return f
}

// Zero replaces frameNo's backing storage with a fresh zero-filled Frame
// and returns it.
func Zero(frameNo uint32) *Frame {
	memMu.Lock()
	defer memMu.Unlock()
	f := &Frame{}
	mem[frameNo] = f
	return f
}
