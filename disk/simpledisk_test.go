package disk

import (
	"bytes"
	"os"
	"testing"
)

func tempImage(t *testing.T, nblocks int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "disk-*.img")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(nblocks) * BlockSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	return f.Name()
}

func TestSimpleDiskRoundTrip(t *testing.T) {
	path := tempImage(t, 4)
	d, err := NewSimpleDisk(path)
	if err != nil {
		t.Fatalf("NewSimpleDisk: %v", err)
	}
	defer d.Close()

	want := bytes.Repeat([]byte{0xAB}, BlockSize)
	if err := d.Write(2, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, BlockSize)
	if err := d.Read(2, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read back different data than written")
	}
}

func TestSimpleDiskRejectsWrongSizedBuffer(t *testing.T) {
	path := tempImage(t, 2)
	d, err := NewSimpleDisk(path)
	if err != nil {
		t.Fatalf("NewSimpleDisk: %v", err)
	}
	defer d.Close()

	if err := d.Read(0, make([]byte, 10)); err == nil {
		t.Fatalf("expected an error for a buffer not sized BlockSize")
	}
}

func TestSimpleDiskIndependentBlocks(t *testing.T) {
	path := tempImage(t, 4)
	d, err := NewSimpleDisk(path)
	if err != nil {
		t.Fatalf("NewSimpleDisk: %v", err)
	}
	defer d.Close()

	a := bytes.Repeat([]byte{0x11}, BlockSize)
	b := bytes.Repeat([]byte{0x22}, BlockSize)
	if err := d.Write(0, a); err != nil {
		t.Fatalf("Write block 0: %v", err)
	}
	if err := d.Write(1, b); err != nil {
		t.Fatalf("Write block 1: %v", err)
	}
	got := make([]byte, BlockSize)
	if err := d.Read(0, got); err != nil {
		t.Fatalf("Read block 0: %v", err)
	}
	if !bytes.Equal(got, a) {
		t.Fatalf("block 0 corrupted by write to block 1")
	}
}
