package snapshot

import (
	"fmt"

	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/replayerr"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// HeaderSize is the fixed on-disk size of the log header (spec.md
// §6.1): a version dword followed by the byte offset of the snapshot
// index, which sits at the tail of the file.
const HeaderSize = 4 + 8

// WriteHeader writes the version and index offset at the start of the
// stream, leaving the codec positioned right after the header.
func WriteHeader(c *codec.Codec, indexOffset uint64) error {
	if err := c.SeekTo(0); err != nil {
		return err
	}
	if err := c.PutDword(wire.ReplayVersion); err != nil {
		return err
	}
	return c.PutQword(int64(indexOffset))
}

// ReadHeader reads and validates the header, returning the snapshot
// index offset. A version mismatch is fatal per spec.md §7.
func ReadHeader(c *codec.Codec) (uint64, error) {
	if err := c.SeekTo(0); err != nil {
		return 0, err
	}
	v, err := c.GetDword()
	if err != nil {
		return 0, err
	}
	if v != wire.ReplayVersion {
		return 0, replayerr.New("read_header", 0, replayerr.KindVersionMismatch,
			fmt.Sprintf("got=%d want=%d", v, wire.ReplayVersion))
	}
	off, err := c.GetQword()
	if err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// PatchIndexOffset overwrites just the index-offset field of an
// already-written header, used on RECORD close once the final tail
// offset is known. The codec's position is left undefined on return;
// callers seek explicitly before their next operation.
func PatchIndexOffset(c *codec.Codec, indexOffset uint64) error {
	if err := c.SeekTo(4); err != nil {
		return err
	}
	return c.PutQword(int64(indexOffset))
}

// Load reads the index from the tail of a PLAY log: the header gives
// the tail offset, and the index itself is a self-delimiting
// count-prefixed table written by Store.
func Load(c *codec.Codec) (*Index, error) {
	off, err := ReadHeader(c)
	if err != nil {
		return nil, err
	}
	if err := c.SeekTo(int64(off)); err != nil {
		return nil, err
	}
	idx := New()
	if err := idx.ReadFrom(c); err != nil {
		return nil, err
	}
	return idx, nil
}

// Store appends the index at the stream's current tail and back-patches
// the header to point at it, used on RECORD close (spec.md §6.1).
func Store(c *codec.Codec, idx *Index) error {
	end, err := c.SeekEnd()
	if err != nil {
		return err
	}
	if err := idx.WriteTo(c); err != nil {
		return err
	}
	return PatchIndexOffset(c, uint64(end))
}
