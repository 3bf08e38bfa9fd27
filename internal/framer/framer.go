// Package framer implements the Event Framer (spec.md §4.2): a thin
// peek/consume layer over the Log Codec that lets the Replay Controller
// look ahead at the next event tag without committing to consume it.
package framer

import "github.com/vmreplay/vmreplay/internal/codec"

// Framer holds the two volatile fields the original C replay core keeps
// global: the last peeked tag (dataKind) and whether it has been
// consumed yet (hasUnread).
type Framer struct {
	c         *codec.Codec
	dataKind  byte
	hasUnread bool
}

// New wraps a Codec in a Framer.
func New(c *codec.Codec) *Framer {
	return &Framer{c: c}
}

// FetchDataKind is idempotent while a peeked tag is pending: the tag is
// only advanced once the pending one has been cleared by Consume.
func (f *Framer) FetchDataKind() (byte, error) {
	if !f.hasUnread {
		b, err := f.c.GetByte()
		if err != nil {
			return 0, err
		}
		f.dataKind = b
		f.hasUnread = true
	}
	return f.dataKind, nil
}

// Peeked reports the currently peeked tag and whether one is pending,
// without reading from the stream.
func (f *Framer) Peeked() (kind byte, pending bool) {
	return f.dataKind, f.hasUnread
}

// Consume clears the pending peek, letting the next FetchDataKind read
// a fresh tag from the stream.
func (f *Framer) Consume() {
	f.hasUnread = false
}

// Codec exposes the underlying codec for payload reads/writes once a
// tag has been matched.
func (f *Framer) Codec() *codec.Codec {
	return f.c
}

// PutEvent writes a tag byte directly (record side never peeks its own
// writes, so this bypasses the peek discipline).
func (f *Framer) PutEvent(tag byte) error {
	return f.c.PutByte(tag)
}
