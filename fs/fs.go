// Package fs implements the on-disk file system: a fixed-size inode
// table in block 0, a byte-per-block free bitmap in block 1, and a
// single indirect block per file listing its data blocks.
package fs

import (
	"sync"

	"kcore/defs"
)

// BlockSize is the on-disk block size, matching disk.BlockSize.
const BlockSize = 512

// MaxInodes is the number of fixed-size inode records packed into
// block 0: inodeRecSize(16) * MaxInodes == BlockSize, so the whole
// table occupies exactly one block.
const MaxInodes = BlockSize / inodeRecSize

const inodeRecSize = 16

// InodeBlock and BitmapBlock are the fixed block numbers this layout
// assigns to the inode table and free-block bitmap.
const (
	InodeBlock     = 0
	BitmapBlock    = 1
	FirstDataBlock = 2
)

// MaxIndirect is the number of 32-bit block numbers a single indirect
// block can hold: 512/4.
const MaxIndirect = BlockSize / 4

// MaxBlocks is the largest number of data blocks a file may hold, one
// indirect block's worth (no double-indirect blocks).
const MaxBlocks = MaxIndirect

// MaxDiskBlocks is the largest disk this file system can describe: the
// free bitmap is one byte per block and lives entirely in block 1, so
// it can name at most BlockSize blocks.
const MaxDiskBlocks = BlockSize

// BlockDevice is the narrow disk interface the file system is built
// against — satisfied directly by *disk.SimpleDisk.
type BlockDevice interface {
	Read(block uint32, buf []byte) error
	Write(block uint32, buf []byte) error
}

// FileSystem is a single mounted on-disk file system instance. Access
// to the shared inode table and free bitmap is single-threaded:
// callers must externally serialize access across files sharing one
// FileSystem.
type FileSystem struct {
	mu sync.Mutex // documents the single-caller discipline; not relied on across Files

	disk   BlockDevice
	inodes [BlockSize]byte // in-memory mirror of block InodeBlock
	bitmap [BlockSize]byte // in-memory mirror of block BitmapBlock
}

// Format zeroes the inode table, marks blocks 0 and 1 (and every block
// at or beyond size) allocated, and the rest free, then persists both
// to disk. size is the total number of usable blocks on the device and
// must not exceed MaxDiskBlocks.
func Format(d BlockDevice, size uint32) (*FileSystem, error) {
	if size > MaxDiskBlocks {
		return nil, defs.ToError(defs.ERANGE)
	}
	fsys := &FileSystem{disk: d}
	for i := uint32(0); i < BlockSize; i++ {
		if i < InodeBlock+1 || i == BitmapBlock || i >= size {
			fsys.bitmap[i] = 1
		} else {
			fsys.bitmap[i] = 0
		}
	}
	if err := fsys.SaveInodes(); err != nil {
		return nil, err
	}
	if err := fsys.SaveFreeList(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// Mount loads the inode table and free-block bitmap from disk into
// memory.
func Mount(d BlockDevice) (*FileSystem, error) {
	fsys := &FileSystem{disk: d}
	if err := d.Read(InodeBlock, fsys.inodes[:]); err != nil {
		return nil, err
	}
	if err := d.Read(BitmapBlock, fsys.bitmap[:]); err != nil {
		return nil, err
	}
	return fsys, nil
}

// SaveInodes persists the in-memory inode table to block InodeBlock.
func (f *FileSystem) SaveInodes() error {
	return f.disk.Write(InodeBlock, f.inodes[:])
}

// SaveFreeList persists the in-memory free-block bitmap to block
// BitmapBlock.
func (f *FileSystem) SaveFreeList() error {
	return f.disk.Write(BitmapBlock, f.bitmap[:])
}

// inode record field layout within one inodeRecSize-byte slot, grounded
// on biscuit/src/fs/super.go's fieldr/fieldw fixed-offset accessors.
const (
	fID        = 0
	fIndirect  = 1
	fNumBlocks = 2
	fLength    = 3
)

func recOff(slot int) int { return slot * inodeRecSize }

func (f *FileSystem) fieldr(slot, field int) int32 {
	return int32(readU32(f.inodes[:], recOff(slot)+field*4))
}

func (f *FileSystem) fieldw(slot, field int, v int32) {
	writeU32(f.inodes[:], recOff(slot)+field*4, uint32(v))
}

// Inode is a handle onto one in-memory-mirrored on-disk inode record.
// Id == 0 marks a free slot.
type Inode struct {
	fs   *FileSystem
	slot int

	Id        int32
	Indirect  uint32
	NumBlocks uint32
	Length    uint32
}

func (f *FileSystem) readInode(slot int) *Inode {
	return &Inode{
		fs:        f,
		slot:      slot,
		Id:        f.fieldr(slot, fID),
		Indirect:  uint32(f.fieldr(slot, fIndirect)),
		NumBlocks: uint32(f.fieldr(slot, fNumBlocks)),
		Length:    uint32(f.fieldr(slot, fLength)),
	}
}

func (f *FileSystem) writeInode(in *Inode) {
	f.fieldw(in.slot, fID, in.Id)
	f.fieldw(in.slot, fIndirect, int32(in.Indirect))
	f.fieldw(in.slot, fNumBlocks, int32(in.NumBlocks))
	f.fieldw(in.slot, fLength, int32(in.Length))
}

// LookupFile linearly scans the inode table for id.
func (f *FileSystem) LookupFile(id int32) (*Inode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for slot := 0; slot < MaxInodes; slot++ {
		if f.fieldr(slot, fID) == id && id != 0 {
			return f.readInode(slot), nil
		}
	}
	return nil, defs.ToError(defs.ENOFILE)
}

// CreateFile allocates a free inode slot and a free indirect block for
// a new, empty file named id. It fails with EEXIST if id is already
// present, ENOINODE if the inode table is full, or ENOSPC if no block
// is free for the indirect block.
func (f *FileSystem) CreateFile(id int32) (*Inode, error) {
	if id == 0 {
		return nil, defs.ToError(defs.ERANGE)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	free := -1
	for slot := 0; slot < MaxInodes; slot++ {
		cur := f.fieldr(slot, fID)
		if cur == id {
			return nil, defs.ToError(defs.EEXIST)
		}
		if cur == 0 && free < 0 {
			free = slot
		}
	}
	if free < 0 {
		return nil, defs.ToError(defs.ENOINODE)
	}

	indirect, err := f.getFreeBlockLocked()
	if err != nil {
		return nil, err
	}
	var zero [BlockSize]byte
	if err := f.disk.Write(indirect, zero[:]); err != nil {
		return nil, err
	}

	in := &Inode{fs: f, slot: free, Id: id, Indirect: indirect}
	f.writeInode(in)
	if err := f.SaveInodes(); err != nil {
		return nil, err
	}
	if err := f.SaveFreeList(); err != nil {
		return nil, err
	}
	return in, nil
}

// DeleteFile frees every data block and the indirect block belonging
// to id, then clears its inode slot.
func (f *FileSystem) DeleteFile(id int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot := -1
	var in *Inode
	for s := 0; s < MaxInodes; s++ {
		if f.fieldr(s, fID) == id && id != 0 {
			slot = s
			in = f.readInode(s)
			break
		}
	}
	if slot < 0 {
		return defs.ToError(defs.ENOFILE)
	}

	var indirectBuf [BlockSize]byte
	if err := f.disk.Read(in.Indirect, indirectBuf[:]); err != nil {
		return err
	}
	for i := 0; i < MaxIndirect; i++ {
		blk := readU32(indirectBuf[:], i*4)
		if blk != 0 {
			f.freeBlockLocked(blk)
		}
	}
	f.freeBlockLocked(in.Indirect)

	f.fieldw(slot, fID, 0)
	f.fieldw(slot, fIndirect, 0)
	f.fieldw(slot, fNumBlocks, 0)
	f.fieldw(slot, fLength, 0)

	if err := f.SaveInodes(); err != nil {
		return err
	}
	return f.SaveFreeList()
}

// GetFreeBlock returns the lowest-indexed free data block (first-fit,
// starting at FirstDataBlock) and marks it allocated.
func (f *FileSystem) GetFreeBlock() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getFreeBlockLocked()
}

func (f *FileSystem) getFreeBlockLocked() (uint32, error) {
	for b := FirstDataBlock; b < BlockSize; b++ {
		if f.bitmap[b] == 0 {
			f.bitmap[b] = 1
			return uint32(b), nil
		}
	}
	return 0, defs.ToError(defs.ENOSPC)
}

// GetFreeBlocks returns n free blocks, first-fit one at a time. On
// failure any blocks already claimed remain allocated; the caller is
// responsible for freeing what it can't use.
func (f *FileSystem) GetFreeBlocks(n int) ([]uint32, error) {
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		b, err := f.GetFreeBlock()
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *FileSystem) freeBlockLocked(b uint32) {
	if b < BlockSize {
		f.bitmap[b] = 0
	}
}

// FreeBlock marks b free again.
func (f *FileSystem) FreeBlock(b uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeBlockLocked(b)
	return f.SaveFreeList()
}
