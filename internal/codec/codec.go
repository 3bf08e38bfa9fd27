// Package codec implements the primitive byte/word/dword/qword/array
// encoding used by the replay log (spec.md §4.1). It is a thin layer
// over a seekable byte stream; every read short of the requested size
// is reported as io.ErrUnexpectedEOF so the caller can turn it into a
// TruncatedLog error with the current step attached.
package codec

import (
	"encoding/binary"
	"io"
)

// Stream is the seekable byte stream the codec reads and writes. Both
// the record-time log file and a play-time log file satisfy it; tests
// use a small in-memory seekable buffer.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Codec frames primitive values onto a Stream in explicit little-endian
// byte order, whatever the host, so a log reads back the same on any
// machine (spec.md §4.1, §9).
type Codec struct {
	s Stream
}

// New wraps a Stream in a Codec.
func New(s Stream) *Codec {
	return &Codec{s: s}
}

// Offset returns the stream's current position.
func (c *Codec) Offset() (int64, error) {
	return c.s.Seek(0, io.SeekCurrent)
}

// SeekTo moves the stream to an absolute byte offset.
func (c *Codec) SeekTo(off int64) error {
	_, err := c.s.Seek(off, io.SeekStart)
	return err
}

// SeekEnd moves the stream to its current end and returns that offset,
// used when appending the snapshot index at the log tail.
func (c *Codec) SeekEnd() (int64, error) {
	return c.s.Seek(0, io.SeekEnd)
}

func (c *Codec) write(buf []byte) error {
	_, err := c.s.Write(buf)
	return err
}

func (c *Codec) read(buf []byte) error {
	_, err := io.ReadFull(c.s, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// PutByte writes a single byte.
func (c *Codec) PutByte(v byte) error {
	return c.write([]byte{v})
}

// PutWord writes a 16-bit value.
func (c *Codec) PutWord(v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return c.write(buf[:])
}

// PutDword writes a 32-bit value.
func (c *Codec) PutDword(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return c.write(buf[:])
}

// PutQword writes a 64-bit value.
func (c *Codec) PutQword(v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return c.write(buf[:])
}

// PutArray writes a size_t-prefixed (fixed u64 here — see spec.md §9's
// format-version note) byte array.
func (c *Codec) PutArray(buf []byte) error {
	if err := c.PutQword(int64(len(buf))); err != nil {
		return err
	}
	return c.write(buf)
}

// GetByte reads a single byte.
func (c *Codec) GetByte() (byte, error) {
	var buf [1]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// GetWord reads a 16-bit value.
func (c *Codec) GetWord() (uint16, error) {
	var buf [2]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// GetDword reads a 32-bit value.
func (c *Codec) GetDword() (uint32, error) {
	var buf [4]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// GetQword reads a 64-bit value.
func (c *Codec) GetQword() (int64, error) {
	var buf [8]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// TryMmapSnapshotIndex attempts to memory-map the snapshot index region
// of the underlying file for fast random-access reads during PLAY. It
// returns (nil, nil) when length is zero or mmap support is unavailable
// on this platform, and the mmap error when mapping fails — in each
// case callers must fall back to seek+read.
func TryMmapSnapshotIndex(f interface{ Fd() uintptr }, offset int64, length int) (*MappedRegion, error) {
	return mmapSnapshotIndex(int(f.Fd()), offset, length)
}

// GetArrayAlloc reads a size-prefixed blob into a freshly allocated buffer.
func (c *Codec) GetArrayAlloc() ([]byte, error) {
	n, err := c.GetArrayLen()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := c.GetArrayData(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetArrayLen reads just the length prefix of a PutArray-encoded blob,
// letting the caller size its own (possibly pooled) buffer before
// reading the payload with GetArrayData.
func (c *Codec) GetArrayLen() (int64, error) {
	return c.GetQword()
}

// GetArrayData reads exactly len(buf) bytes of array payload. Callers
// must size buf from a prior GetArrayLen.
func (c *Codec) GetArrayData(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return c.read(buf)
}
