package snapshot

import "fmt"

// Phase is the reverse-execution driver's own state (spec.md §4.6),
// exposed mainly for diagnostics and tests.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePass1
	PhasePass2
)

// Collaborator is the CPU-loop surface the driver needs: loading a
// snapshot positions both the guest state and the log read cursor at
// that point; ReplayForward runs the CPU loop forward from whatever
// was just loaded, invoking onStep after every instruction boundary,
// until targetStep is reached. IsBreakpoint and DispatchBreakpoint let
// pass 2 hand control back to the collaborator's own debug facility
// once the exact breakpoint step is known.
type Collaborator interface {
	LoadSnapshot(offset uint64) error
	ReplayForward(targetStep uint64, onStep func(step uint64)) error
	IsBreakpoint(step uint64) bool
	DispatchBreakpoint(step uint64)
}

// Driver implements reverse-step and reverse-continue on top of an
// Index and a Collaborator (spec.md §4.6): every backward move is
// really a forward replay from the nearest earlier snapshot, since the
// log itself is never walked backward.
type Driver struct {
	index  *Index
	collab Collaborator
	phase  Phase
}

// NewDriver creates a Driver over idx, bound to collab.
func NewDriver(idx *Index, collab Collaborator) *Driver {
	return &Driver{index: idx, collab: collab, phase: PhaseIdle}
}

// Phase reports the driver's current state.
func (d *Driver) Phase() Phase { return d.phase }

// ReverseStep rewinds execution by exactly one instruction step: seek
// to the nearest snapshot at or before target, then replay forward to
// target (spec.md §8 S6: "snapshots at {0,100,200}, seek to 150 lands
// at exactly 150").
func (d *Driver) ReverseStep(current uint64) error {
	if current == 0 {
		return fmt.Errorf("snapshot: cannot reverse-step before step 0")
	}
	target := current - 1
	entry, ok := d.index.NearestAtOrBelow(target)
	if !ok {
		return fmt.Errorf("snapshot: no snapshot at or below step %d", target)
	}
	if err := d.collab.LoadSnapshot(entry.Offset); err != nil {
		return err
	}
	return d.collab.ReplayForward(target, nil)
}

// Seek positions execution at exactly target, forward or backward,
// by loading the nearest snapshot at or before target and replaying
// forward from there (spec.md §8 S6: snapshots at {0,100,200}, seeking
// to 150 enters the snapshot at 100 and replays 50 steps forward).
func (d *Driver) Seek(target uint64) error {
	entry, ok := d.index.NearestAtOrBelow(target)
	if !ok {
		return fmt.Errorf("snapshot: no snapshot at or below step %d", target)
	}
	if err := d.collab.LoadSnapshot(entry.Offset); err != nil {
		return err
	}
	return d.collab.ReplayForward(target, nil)
}

// ReverseContinue finds the nearest breakpoint strictly before s0 and
// resumes execution there, using the two-pass scan spec.md §4.6
// describes: pass 1 replays from each snapshot forward to s0, tracking
// only the *last* breakpoint hit along the way (without stopping early,
// since an earlier hit in the same run would be superseded by a later
// one closer to s0); once a snapshot's pass 1 finds any hit, pass 2
// redoes that same stretch stopping exactly at it and hands off to the
// collaborator's own debug handler. s0 itself is never reported as a
// hit, even if a breakpoint sits there — ReverseContinue searches for
// the breakpoint *before* the current position, not at it.
func (d *Driver) ReverseContinue(s0 uint64) error {
	d.phase = PhasePass1
	defer func() { d.phase = PhaseIdle }()

	i, ok := d.index.IndexAtOrBelow(s0)
	for ok {
		entry := d.index.At(i)
		if err := d.collab.LoadSnapshot(entry.Offset); err != nil {
			return err
		}

		sentinel := entry.Step - 1 // "no breakpoint seen yet" marker, never a real step
		lastHit := sentinel
		onStep := func(step uint64) {
			if step == s0 {
				return
			}
			if d.collab.IsBreakpoint(step) {
				lastHit = step
			}
		}
		if err := d.collab.ReplayForward(s0, onStep); err != nil {
			return err
		}

		if lastHit != sentinel {
			d.phase = PhasePass2
			if err := d.collab.LoadSnapshot(entry.Offset); err != nil {
				return err
			}
			if err := d.collab.ReplayForward(lastHit, nil); err != nil {
				return err
			}
			d.collab.DispatchBreakpoint(lastHit)
			return nil
		}

		i--
		ok = i >= 0
	}
	return fmt.Errorf("snapshot: no breakpoint found scanning backward from step %d", s0)
}
