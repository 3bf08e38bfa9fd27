//go:build linux

package codec

import "golang.org/x/sys/unix"

// MappedRegion is a page-aligned mmap of part of the log file, with
// Bytes giving the caller the exact [offset, offset+length) view they
// asked for. Close must be called with the same region it returned.
type MappedRegion struct {
	full []byte
	pad  int
	n    int
}

// Bytes returns the requested [offset, offset+length) view.
func (m *MappedRegion) Bytes() []byte {
	if m == nil {
		return nil
	}
	return m.full[m.pad : m.pad+m.n]
}

// Close unmaps the region.
func (m *MappedRegion) Close() error {
	if m == nil || m.full == nil {
		return nil
	}
	return unix.Munmap(m.full)
}

// mmapSnapshotIndex maps the tail region of the log file containing the
// snapshot index table for random-access scanning during PLAY (spec.md
// §4.6). It is an optional accelerator: mmap failure is never fatal,
// the caller falls back to a plain seek+read scan.
func mmapSnapshotIndex(fd int, offset int64, length int) (*MappedRegion, error) {
	if length == 0 {
		return nil, nil
	}
	pageOffset := offset &^ int64(unix.Getpagesize()-1)
	pad := int(offset - pageOffset)
	full, err := unix.Mmap(fd, pageOffset, length+pad, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MappedRegion{full: full, pad: pad, n: length}, nil
}
