//go:build !linux

package codec

// MappedRegion is the non-Linux stand-in: mmap acceleration is a Linux-only
// fast path, so this type is never populated and Bytes always returns nil.
type MappedRegion struct{}

func (m *MappedRegion) Bytes() []byte { return nil }
func (m *MappedRegion) Close() error  { return nil }

func mmapSnapshotIndex(fd int, offset int64, length int) (*MappedRegion, error) {
	return nil, nil
}
