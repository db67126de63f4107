// Package pmm implements the physical frame allocator: a contiguous-run,
// per-pool frame pool chained into a single process-wide registry so a
// frame can be released by number alone.
package pmm

import (
	"fmt"
	"sync"

	"kcore/defs"
)

// PGSHIFT is the base-2 exponent for the frame size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single frame in bytes.
const PGSIZE uint32 = 1 << PGSHIFT

// Kind is the per-frame allocation state, packed two bits per frame in
// the pool's bitmap and exposed type-safely at the API boundary rather
// than as the raw 2-bit encoding.
type Kind uint8

const (
	Free           Kind = 0
	Used           Kind = 1
	HeadOfSequence Kind = 2
)

// String renders a Kind as a short lowercase name for diagnostics.
func (k Kind) String() string {
	switch k {
	case Free:
		return "free"
	case Used:
		return "used"
	case HeadOfSequence:
		return "head-of-sequence"
	default:
		return "invalid"
	}
}

const bitsPerFrame = 2
const framesPerByte = 8 / bitsPerFrame

// ContFramePool owns a contiguous range [BaseFrame, BaseFrame+NFrames) of
// the global frame space and tracks each frame's state in a packed
// bitmap, either self-hosted at the start of the pool's own range or in
// an externally supplied info frame.
type ContFramePool struct {
	sync.Mutex

	BaseFrame uint32
	NFrames   uint32
	InfoFrame uint32 // 0 means self-hosted

	bitmap []byte // bitsPerFrame bits per frame, framesPerByte frames per byte
}

// package-wide registry so Release can find the owning pool by frame
// number alone: every pool is linked into a single global list.
var (
	registryMu sync.Mutex
	registry   []*ContFramePool
)

// NeededInfoFrames returns the number of frames required to hold the
// management bitmap for a pool of n frames: ceil(2n / (PGSIZE*8)).
func NeededInfoFrames(n uint32) uint32 {
	bits := uint64(n) * bitsPerFrame
	perFrame := uint64(PGSIZE) * 8
	return uint32((bits + perFrame - 1) / perFrame)
}

// New constructs a pool over [baseFrame, baseFrame+nFrames). If
// infoFrame is 0 the pool's bitmap lives at the start of the pool's own
// frame range and the frames it occupies are pre-marked
// head-of-sequence/used so they are never handed out; otherwise the
// bitmap is considered to live in caller-supplied storage and every
// frame starts Free.
func New(baseFrame, nFrames, infoFrame uint32) (*ContFramePool, defs.Err_t) {
	if nFrames == 0 {
		return nil, defs.ERANGE
	}
	nbytes := (uint64(nFrames)*bitsPerFrame + 7) / 8
	p := &ContFramePool{
		BaseFrame: baseFrame,
		NFrames:   nFrames,
		InfoFrame: infoFrame,
		bitmap:    make([]byte, nbytes),
	}
	if infoFrame == 0 {
		reserved := NeededInfoFrames(nFrames)
		if reserved == 0 {
			reserved = 1
		}
		if reserved > nFrames {
			return nil, defs.ERANGE
		}
		p.setState(0, HeadOfSequence)
		for i := uint32(1); i < reserved; i++ {
			p.setState(i, Used)
		}
	}
	registryMu.Lock()
	registry = append(registry, p)
	registryMu.Unlock()
	return p, 0
}

func (p *ContFramePool) idxState(idx uint32) Kind {
	byteIdx := idx / framesPerByte
	shift := (idx % framesPerByte) * bitsPerFrame
	return Kind((p.bitmap[byteIdx] >> shift) & 0x3)
}

func (p *ContFramePool) setState(idx uint32, s Kind) {
	byteIdx := idx / framesPerByte
	shift := (idx % framesPerByte) * bitsPerFrame
	p.bitmap[byteIdx] &^= 0x3 << shift
	p.bitmap[byteIdx] |= byte(s) << shift
}

// GetFrames finds the lowest-indexed maximal run of n consecutive free
// frames, marks the first HeadOfSequence and the rest Used, and returns
// the absolute frame number of the head.
func (p *ContFramePool) GetFrames(n uint32) (uint32, defs.Err_t) {
	if n == 0 {
		return 0, defs.ERANGE
	}
	p.Lock()
	defer p.Unlock()

	run := uint32(0)
	start := uint32(0)
	for i := uint32(0); i < p.NFrames; i++ {
		if p.idxState(i) == Free {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				p.setState(start, HeadOfSequence)
				for j := start + 1; j < start+n; j++ {
					p.setState(j, Used)
				}
				return p.BaseFrame + start, 0
			}
		} else {
			run = 0
		}
	}
	return 0, defs.ENOMEM
}

// MarkInaccessible performs the same bookkeeping as GetFrames but at a
// caller-chosen range, which must lie entirely inside the pool and be
// entirely Free.
func (p *ContFramePool) MarkInaccessible(base, n uint32) defs.Err_t {
	if n == 0 {
		return defs.ERANGE
	}
	if base < p.BaseFrame || base+n > p.BaseFrame+p.NFrames {
		return defs.ERANGE
	}
	p.Lock()
	defer p.Unlock()

	start := base - p.BaseFrame
	for i := start; i < start+n; i++ {
		if p.idxState(i) != Free {
			return defs.ERANGE
		}
	}
	p.setState(start, HeadOfSequence)
	for i := start + 1; i < start+n; i++ {
		p.setState(i, Used)
	}
	return 0
}

// Release finds the pool owning frameNo in the global registry and frees
// the run it heads. It fails if no pool owns the frame or the frame is
// not a head-of-sequence.
func Release(frameNo uint32) defs.Err_t {
	registryMu.Lock()
	var owner *ContFramePool
	for _, p := range registry {
		if frameNo >= p.BaseFrame && frameNo < p.BaseFrame+p.NFrames {
			owner = p
			break
		}
	}
	registryMu.Unlock()
	if owner == nil {
		return defs.EFRAME
	}
	return owner.release(frameNo)
}

func (p *ContFramePool) release(frameNo uint32) defs.Err_t {
	p.Lock()
	defer p.Unlock()

	idx := frameNo - p.BaseFrame
	if p.idxState(idx) != HeadOfSequence {
		return defs.ENOSEQ
	}
	p.setState(idx, Free)
	for i := idx + 1; i < p.NFrames; i++ {
		s := p.idxState(i)
		if s != Used {
			break
		}
		p.setState(i, Free)
	}
	return 0
}

// Stats reports the number of free and used (including head-of-sequence)
// frames in the pool.
func (p *ContFramePool) Stats() (free_ int, used_ int) {
	p.Lock()
	defer p.Unlock()
	for i := uint32(0); i < p.NFrames; i++ {
		if p.idxState(i) == Free {
			free_++
		} else {
			used_++
		}
	}
	return
}

// Kind reports the current allocation state of frameNo. It fails if
// frameNo does not lie within the pool's range.
func (p *ContFramePool) Kind(frameNo uint32) (Kind, defs.Err_t) {
	p.Lock()
	defer p.Unlock()
	if frameNo < p.BaseFrame || frameNo >= p.BaseFrame+p.NFrames {
		return 0, defs.ERANGE
	}
	return p.idxState(frameNo - p.BaseFrame), 0
}

// String renders a short summary, matching biscuit's habit of ad hoc
// diagnostic Printf output (mem.Phys_init logs pool sizing the same way).
func (p *ContFramePool) String() string {
	f, u := p.Stats()
	return fmt.Sprintf("pool[base=%#x n=%d free=%d used=%d]", p.BaseFrame, p.NFrames, f, u)
}
