// Package clock implements the Clock Cache (spec.md §4.5): the last
// observed value per clock kind, plus the icount-derived virtual clock
// described in SPEC_FULL.md §6 (grounded on original_source's
// replay-icount.c).
package clock

import "github.com/vmreplay/vmreplay/internal/wire"

// Cache holds the last value seen for each clock kind.
type Cache struct {
	values [wire.ClockCount]int64
	bias   int64
	icount int
}

// New creates a Cache. icount is the left-shift applied when deriving
// the virtual clock from the instruction step count (spec.md §6.3);
// zero disables icount-based timing.
func New(icount int) *Cache {
	return &Cache{icount: icount}
}

// Set stores the last observed value for a clock kind.
func (c *Cache) Set(kind int, v int64) {
	c.values[kind] = v
}

// Get returns the last cached value for a clock kind.
func (c *Cache) Get(kind int) int64 {
	return c.values[kind]
}

// VirtualTime derives the virtual CPU clock from the current step,
// matching replay_get_icount in the original source: bias + (step << icount).
func (c *Cache) VirtualTime(step uint64) int64 {
	return c.bias + (int64(step) << c.icount)
}

// AdjustBias shifts the virtual clock's bias term, the Go equivalent of
// the C replay core's vm_clock warp compensation.
func (c *Cache) AdjustBias(delta int64) {
	c.bias += delta
}

// ICount reports the configured instruction-count shift.
func (c *Cache) ICount() int {
	return c.icount
}
