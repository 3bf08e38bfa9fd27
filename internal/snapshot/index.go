// Package snapshot implements the Snapshot Index and the
// Reverse-Execution Driver (spec.md §4.6): the append-only
// (log_offset, step) table at the tail of the log, the periodic
// auto-snapshot timer that grows it in RECORD, and the two-pass
// breakpoint search that powers reverse-step / reverse-continue.
package snapshot

import (
	"sort"
	"sync"

	"github.com/vmreplay/vmreplay/internal/codec"
)

// Entry is one snapshot index row (spec.md §3): a log offset paired
// with the current_step at which the snapshot was taken. By
// construction (I5) entries are appended in strictly increasing step
// order.
type Entry struct {
	Offset uint64
	Step   uint64
}

// Index is the in-memory snapshot table, grown by the auto-snapshot
// timer in RECORD and read once into memory on open-for-PLAY.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{}
}

// Append adds a snapshot entry. Callers are responsible for the
// strictly-monotone-by-step invariant (I5); the timer is the only
// writer and always appends the latest step.
func (idx *Index) Append(offset, step uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = append(idx.entries, Entry{Offset: offset, Step: step})
}

// Len reports the number of snapshot entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// At returns the i'th entry.
func (idx *Index) At(i int) Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries[i]
}

// NearestAtOrBelow returns the entry with the largest step <= target,
// used by reverse-step and by snapshot-based seeking (spec.md §8 P6,
// S6).
func (idx *Index) NearestAtOrBelow(target uint64) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i := idx.indexAtOrBelowLocked(target)
	if i < 0 {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// IndexAtOrBelow returns the slice index of the entry with the largest
// step <= target, or (-1, false) if every entry is beyond target. The
// reverse-execution driver uses the index form so it can walk backward
// to the previous snapshot without a second search.
func (idx *Index) IndexAtOrBelow(target uint64) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i := idx.indexAtOrBelowLocked(target)
	return i, i >= 0
}

func (idx *Index) indexAtOrBelowLocked(target uint64) int {
	// entries are sorted ascending by Step; find the first entry whose
	// Step exceeds target, then step back one.
	n := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Step > target
	})
	return n - 1
}

// WriteTo serializes the index at the codec's current position:
// count:u64 followed by count * (offset:u64, step:u64), matching the
// file-tail layout in spec.md §6.1.
func (idx *Index) WriteTo(c *codec.Codec) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if err := c.PutQword(int64(len(idx.entries))); err != nil {
		return err
	}
	for _, e := range idx.entries {
		if err := c.PutQword(int64(e.Offset)); err != nil {
			return err
		}
		if err := c.PutQword(int64(e.Step)); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom replaces the index contents by deserializing from the
// codec's current position, the inverse of WriteTo.
func (idx *Index) ReadFrom(c *codec.Codec) error {
	count, err := c.GetQword()
	if err != nil {
		return err
	}
	entries := make([]Entry, 0, count)
	for i := int64(0); i < count; i++ {
		offset, err := c.GetQword()
		if err != nil {
			return err
		}
		step, err := c.GetQword()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Offset: uint64(offset), Step: uint64(step)})
	}
	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()
	return nil
}
