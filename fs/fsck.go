package fs

import "hash/fnv"

// Checksum reads file id end to end and returns an FNV-1a hash of its
// contents, repurposing the hashing idiom biscuit's hashtable package
// uses for key lookups into a cheap per-file consistency check (used by
// cmd/mkfs to confirm a freshly written file round-trips before moving
// on to the next one).
func (f *FileSystem) Checksum(id int32) (uint32, error) {
	file, err := Open(f, id)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	h := fnv.New32a()
	buf := make([]byte, BlockSize)
	for !file.EoF() {
		n, err := file.Read(buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		h.Write(buf[:n])
	}
	return h.Sum32(), nil
}
