// Package disk implements the block device client: SimpleDisk polls for
// completion, NonBlockingDisk parks the calling thread instead.
package disk

import (
	"io"
	"os"
	"sync"

	"kcore/defs"
)

// BlockSize is the sector size this kernel operates in,
// independent of the page size used by the frame/page-table layers.
const BlockSize = 512

// SimpleDisk is a programmed-I/O LBA28 block device backed by a host
// file standing in for port 0x1F0, the low-level port I/O this core
// puts out of scope. Read and Write poll to completion synchronously.
type SimpleDisk struct {
	mu sync.Mutex
	f  *os.File
}

// NewSimpleDisk opens (without creating) the disk image at path.
func NewSimpleDisk(path string) (*SimpleDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &SimpleDisk{f: f}, nil
}

// Read transfers BlockSize bytes from block into buf.
func (d *SimpleDisk) Read(block uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return defs.ToError(defs.ERANGE)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(block)*BlockSize, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.f, buf)
	return err
}

// Write transfers BlockSize bytes from buf to block, then issues the
// cache-flush the write path requires.
func (d *SimpleDisk) Write(block uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return defs.ToError(defs.ERANGE)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Seek(int64(block)*BlockSize, io.SeekStart); err != nil {
		return err
	}
	if _, err := d.f.Write(buf); err != nil {
		return err
	}
	return d.f.Sync()
}

// Close releases the backing file.
func (d *SimpleDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
