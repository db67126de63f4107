package fs

import (
	"kcore/defs"
)

// noCachedBlock marks File.cachedIdx as holding no valid cached block.
const noCachedBlock = -1

// File is a cursor over one inode's data: position, the index (within
// the indirect block) of the currently cached data block, and a single
// BlockSize write-through cache buffer.
type File struct {
	fs    *FileSystem
	inode *Inode

	position  uint32
	cachedIdx int
	cache     [BlockSize]byte

	indirect [BlockSize]byte // in-memory mirror of the inode's indirect block
}

// Open returns a cursor over the file named id, starting at position 0.
func Open(fsys *FileSystem, id int32) (*File, error) {
	in, err := fsys.LookupFile(id)
	if err != nil {
		return nil, err
	}
	f := &File{fs: fsys, inode: in, cachedIdx: noCachedBlock}
	if err := fsys.disk.Read(in.Indirect, f.indirect[:]); err != nil {
		return nil, err
	}
	return f, nil
}

// blockNumAt returns the data block number stored at indirect slot idx,
// or 0 if that slot is unallocated.
func (f *File) blockNumAt(idx int) uint32 {
	return readU32(f.indirect[:], idx*4)
}

func (f *File) setBlockNumAt(idx int, blk uint32) {
	writeU32(f.indirect[:], idx*4, blk)
}

func (f *File) flushIndirect() error {
	return f.fs.disk.Write(f.inode.Indirect, f.indirect[:])
}

// loadBlock fills f.cache with the contents of indirect slot idx,
// allocating nothing — a cache miss on an unallocated slot is an error,
// since Read never extends a file and Write allocates before loading.
func (f *File) loadBlock(idx int) error {
	blk := f.blockNumAt(idx)
	if blk == 0 {
		return defs.ToError(defs.ERANGE)
	}
	if err := f.fs.disk.Read(blk, f.cache[:]); err != nil {
		return err
	}
	f.cachedIdx = idx
	return nil
}

// Read copies up to len(buf) bytes starting at the cursor into buf,
// clamped to the file's remaining length, and advances the cursor.
func (f *File) Read(buf []byte) (int, error) {
	remaining := int(f.inode.Length) - int(f.position)
	if remaining <= 0 {
		return 0, nil
	}
	want := len(buf)
	if want > remaining {
		want = remaining
	}

	done := 0
	for done < want {
		idx := int(f.position) / BlockSize
		off := int(f.position) % BlockSize
		if idx != f.cachedIdx {
			if err := f.loadBlock(idx); err != nil {
				return done, err
			}
		}
		n := BlockSize - off
		if n > want-done {
			n = want - done
		}
		copy(buf[done:done+n], f.cache[off:off+n])
		done += n
		f.position += uint32(n)
	}
	return done, nil
}

// Write copies len(buf) bytes from buf to the cursor, clamped to
// MaxBlocks*BlockSize, allocating new data blocks on demand and writing
// each modified block through to disk immediately. If a block
// allocation fails partway through, the write is truncated to what was
// actually stored and no error is returned.
func (f *File) Write(buf []byte) (int, error) {
	limit := uint32(MaxBlocks * BlockSize)
	if f.position >= limit {
		return 0, nil
	}
	want := len(buf)
	if uint32(want) > limit-f.position {
		want = int(limit - f.position)
	}

	done := 0
	for done < want {
		idx := int(f.position) / BlockSize
		off := int(f.position) % BlockSize

		blk := f.blockNumAt(idx)
		if blk == 0 {
			nb, err := f.fs.GetFreeBlock()
			if err != nil {
				break // truncate: allocation failure stops the write here
			}
			f.setBlockNumAt(idx, nb)
			if err := f.flushIndirect(); err != nil {
				f.fs.FreeBlock(nb)
				f.setBlockNumAt(idx, 0)
				break
			}
			blk = nb
			f.inode.NumBlocks++
			if idx != f.cachedIdx {
				var zero [BlockSize]byte
				f.cache = zero
			}
		} else if idx != f.cachedIdx {
			if err := f.loadBlock(idx); err != nil {
				break
			}
		}
		f.cachedIdx = idx

		n := BlockSize - off
		if n > want-done {
			n = want - done
		}
		copy(f.cache[off:off+n], buf[done:done+n])
		if err := f.fs.disk.Write(blk, f.cache[:]); err != nil {
			break
		}

		done += n
		f.position += uint32(n)
		if f.position > f.inode.Length {
			f.inode.Length = f.position
		}
	}

	if done > 0 {
		f.fs.mu.Lock()
		f.fs.writeInode(f.inode)
		f.fs.mu.Unlock()
		if err := f.fs.SaveInodes(); err != nil {
			return done, err
		}
	}
	return done, nil
}

// Reset rewinds the cursor to the start of the file and invalidates
// the cache — the cache is write-through, so nothing is lost.
func (f *File) Reset() {
	f.position = 0
	f.cachedIdx = noCachedBlock
}

// EoF reports whether the cursor has reached the end of the file.
func (f *File) EoF() bool {
	return f.position >= f.inode.Length
}

// Length returns the file's current length in bytes.
func (f *File) Length() uint32 { return f.inode.Length }

// Close flushes the in-memory indirect block. Inode metadata and the
// write-through data cache are already persisted by Write, so there is
// nothing else pending.
func (f *File) Close() error {
	return f.flushIndirect()
}
