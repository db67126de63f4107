package fs

import "unsafe"

// readU32 reads a native-endian uint32 from a at offset off. Inode
// records and indirect-block entries are the only fixed-size fields
// this package stores, so there is no need for a variable-width switch.
func readU32(a []byte, off int) uint32 {
	return *(*uint32)(unsafe.Pointer(&a[off]))
}

// writeU32 stores v into a at offset off.
func writeU32(a []byte, off int, v uint32) {
	*(*uint32)(unsafe.Pointer(&a[off])) = v
}
