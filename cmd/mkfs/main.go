// Command mkfs creates and formats a disk image file for kcore's file
// system, optionally preloading it with files copied from a host
// directory. Grounded on biscuit/src/mkfs/mkfs.go's shape, trimmed to
// this repo's flat id-keyed file system (no directory tree to walk on
// the image side).
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"

	"kcore/disk"
	"kcore/fs"
)

func main() {
	var (
		image   = flag.String("image", "", "path to the disk image to create")
		blocks  = flag.Uint("blocks", fs.MaxDiskBlocks, "total usable blocks on the image")
		skelDir = flag.String("skel", "", "optional host directory whose files are copied onto the image")
	)
	flag.Parse()

	if *image == "" {
		fmt.Fprintln(os.Stderr, "usage: mkfs -image <path> [-blocks N] [-skel dir]")
		os.Exit(1)
	}

	if err := run(*image, uint32(*blocks), *skelDir); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
}

func run(image string, blocks uint32, skelDir string) error {
	f, err := os.Create(image)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(blocks) * disk.BlockSize); err != nil {
		f.Close()
		return err
	}
	f.Close()

	d, err := disk.NewSimpleDisk(image)
	if err != nil {
		return err
	}
	defer d.Close()

	fsys, err := fs.Format(d, blocks)
	if err != nil {
		return err
	}

	if skelDir == "" {
		return nil
	}
	return addFiles(fsys, skelDir)
}

// addFiles walks skelDir on the host and copies each regular file's
// contents into the image, assigning file ids in directory-walk order
// starting at 1 (id 0 is the on-disk "free slot" sentinel).
func addFiles(fsys *fs.FileSystem, skelDir string) error {
	nextID := int32(1)
	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		id := nextID
		nextID++
		if _, err := fsys.CreateFile(id); err != nil {
			return fmt.Errorf("create %s as file %d: %w", path, id, err)
		}
		handle, err := fs.Open(fsys, id)
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		hostHash := fnv.New32a()
		if _, err := io.Copy(io.MultiWriter(writerFunc(handle.Write), hostHash), src); err != nil {
			return fmt.Errorf("copy %s into file %d: %w", path, id, err)
		}
		if err := handle.Close(); err != nil {
			return fmt.Errorf("close file %d: %w", id, err)
		}

		diskHash, err := fsys.Checksum(id)
		if err != nil {
			return fmt.Errorf("checksum file %d: %w", id, err)
		}
		if diskHash != hostHash.Sum32() {
			return fmt.Errorf("%s: on-disk checksum %x does not match host checksum %x", path, diskHash, hostHash.Sum32())
		}
		return nil
	})
}

// writerFunc adapts a Write method to io.Writer for io.Copy.
type writerFunc func([]byte) (int, error)

func (w writerFunc) Write(p []byte) (int, error) { return w(p) }
