// Package controller implements the Replay Controller (spec.md §4.4):
// the state machine tying instruction counting, synchronous CPU events,
// checkpoints, clocks, and the async event queue together, and the
// record/play entry points collaborators call from the CPU loop.
package controller

import (
	"fmt"

	"github.com/vmreplay/vmreplay/internal/asyncqueue"
	"github.com/vmreplay/vmreplay/internal/clock"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/replayerr"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Hooks is the collaborator surface consumed outside the async queue
// (spec.md §6.2): shutdown and the snapshot-skip path taken when
// SAVE_VM_BEGIN is encountered but the CPU thread cannot process a
// load right now.
type Hooks interface {
	Shutdown()
	SkipSnapshot()
}

// NoOpHooks is a Hooks implementation that does nothing, usable by
// callers that only exercise the log state machine (tests, tooling).
type NoOpHooks struct{}

func (NoOpHooks) Shutdown()     {}
func (NoOpHooks) SkipSnapshot() {}

// Observer receives instruction and checkpoint events as the
// controller processes them, the metrics-collection seam described in
// spec.md §6.3.
type Observer interface {
	OnInstruction(recording bool)
	OnCheckpoint(hit bool)
}

// Controller is the owning session value the design notes in spec.md
// §9 call for in place of the original's process-wide globals: one
// instance per replay session, passed explicitly to every operation.
type Controller struct {
	mode    wire.Mode
	submode wire.Submode

	fr       *framer.Framer
	clock    *clock.Cache
	queue    *asyncqueue.Queue
	hooks    Hooks
	observer Observer
	log      *logging.Logger

	step                uint64
	pendingCount        uint32 // instructions accumulated since last flush (RECORD)
	pendingRun          uint32 // instructions remaining in the current run (PLAY)
	skippingInstruction bool
}

// New creates a Controller bound to a session's framer, clock cache,
// and async queue. hooks may be nil, in which case NoOpHooks is used.
func New(mode wire.Mode, fr *framer.Framer, clk *clock.Cache, q *asyncqueue.Queue, hooks Hooks, log *logging.Logger) *Controller {
	if hooks == nil {
		hooks = NoOpHooks{}
	}
	q.SetMode(mode)
	return &Controller{mode: mode, fr: fr, clock: clk, queue: q, hooks: hooks, log: log}
}

// SetObserver installs an Observer to receive instruction and
// checkpoint events. May be called with nil to disable observation.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// Step returns current_step.
func (c *Controller) Step() uint64 { return c.step }

// Mode and Submode report the session's current mode.
func (c *Controller) Mode() wire.Mode       { return c.mode }
func (c *Controller) Submode() wire.Submode { return c.submode }

// SetSubmode switches between NORMAL and REVERSE PLAY, used by the
// reverse-execution driver.
func (c *Controller) SetSubmode(s wire.Submode) { c.submode = s }

// FlushInstructions forces the pending RECORD instruction count out to
// the log now, without waiting for the next event that would trigger
// it implicitly. A no-op when nothing is pending or mode != RECORD.
func (c *Controller) FlushInstructions() error {
	return c.flushInstructionCount()
}

func (c *Controller) flushInstructionCount() error {
	if c.pendingCount == 0 {
		return nil
	}
	if err := c.fr.PutEvent(wire.EventInstruction); err != nil {
		return err
	}
	if err := c.fr.Codec().PutDword(c.pendingCount); err != nil {
		return err
	}
	c.step += uint64(c.pendingCount)
	c.pendingCount = 0
	return nil
}

// Instruction is the hot path called before each guest instruction
// (spec.md §4.4). It reports whether an instruction actually ran this
// call; PLAY callers that get false and no error should return control
// to the emulator's main loop and retry (spec.md §5's suspension point).
func (c *Controller) Instruction(processEvents bool) (bool, error) {
	switch c.mode {
	case wire.ModeRecord:
		return c.recordInstruction(processEvents)
	case wire.ModePlay:
		return c.playInstruction()
	default:
		return true, nil
	}
}

func (c *Controller) recordInstruction(processEvents bool) (bool, error) {
	if processEvents && c.queue.HasEvents() {
		if err := c.flushInstructionCount(); err != nil {
			return false, err
		}
		if err := c.queue.Save(c.fr, -1); err != nil {
			return false, err
		}
	} else {
		c.pendingCount++
	}
	if c.observer != nil {
		c.observer.OnInstruction(true)
	}
	return true, nil
}

func (c *Controller) playInstruction() (bool, error) {
	if c.skippingInstruction {
		c.skippingInstruction = false
		return false, nil
	}
	if c.pendingRun == 0 {
		if err := c.skipAsyncEventsUntil(wire.EventInstruction); err != nil {
			return false, err
		}
	}
	if c.pendingRun > 0 {
		c.pendingRun--
		c.step++
		if c.observer != nil {
			c.observer.OnInstruction(false)
		}
		return true, nil
	}
	// No run available: the peek stopped at an ASYNC event ahead of the
	// next INSTRUCTION (the allowed case in skipAsyncEventsUntil). Drain
	// it and let the caller retry.
	if err := c.queue.Read(c.fr, -1); err != nil {
		return false, err
	}
	return false, nil
}

// UndoLastInstruction cancels the instruction just begun: RECORD
// decrements the pending count, PLAY arms a one-shot skip.
func (c *Controller) UndoLastInstruction() {
	switch c.mode {
	case wire.ModeRecord:
		if c.pendingCount > 0 {
			c.pendingCount--
		}
	case wire.ModePlay:
		c.skippingInstruction = true
	}
}

// HasAsyncRequest reports whether an async event is ready to dispatch:
// in RECORD, the queue is non-empty; in PLAY, peeking past non-blocking
// events yields an ASYNC tag.
func (c *Controller) HasAsyncRequest() (bool, error) {
	if c.mode == wire.ModeRecord {
		return c.queue.HasEvents(), nil
	}
	return c.skipAsyncEvents(wire.EventAsync)
}

// Exception and Interrupt flush the pending instruction count and
// record the event (RECORD), or consume it iff it appears before the
// next INSTRUCTION (PLAY) — the mechanism that replays a CPU event at
// exactly its recorded instruction boundary.
func (c *Controller) Exception() (bool, error) { return c.syncEvent(wire.EventException) }
func (c *Controller) Interrupt() (bool, error) { return c.syncEvent(wire.EventInterrupt) }

func (c *Controller) syncEvent(tag byte) (bool, error) {
	switch c.mode {
	case wire.ModeRecord:
		if err := c.flushInstructionCount(); err != nil {
			return false, err
		}
		if err := c.fr.PutEvent(tag); err != nil {
			return false, err
		}
		c.step++
		return true, nil
	case wire.ModePlay:
		seen, err := c.skipAsyncEvents(tag)
		if err != nil {
			return false, err
		}
		if seen {
			c.fr.Consume()
			c.step++
		}
		return seen, nil
	default:
		return false, nil
	}
}

// Checkpoint writes (RECORD) or consumes (PLAY) CHECKPOINT+k, saving or
// reading any async events gated on this checkpoint's opt value. PLAY
// returns 1 if the checkpoint was recorded at this point, 0 if the
// collaborator should skip its checkpointed work.
func (c *Controller) Checkpoint(k int) (int, error) {
	tag := byte(wire.EventCheckpoint + k)
	switch c.mode {
	case wire.ModeRecord:
		if err := c.flushInstructionCount(); err != nil {
			return 0, err
		}
		if err := c.fr.PutEvent(tag); err != nil {
			return 0, err
		}
		if err := c.queue.Save(c.fr, k); err != nil {
			return 0, err
		}
		if c.observer != nil {
			c.observer.OnCheckpoint(true)
		}
		return 1, nil
	case wire.ModePlay:
		peeked, err := c.fr.FetchDataKind()
		if err != nil {
			return 0, err
		}
		if peeked == wire.EventAsyncOpt {
			if err := c.queue.Read(c.fr, k); err != nil {
				return 0, err
			}
			if peeked, err = c.fr.FetchDataKind(); err != nil {
				return 0, err
			}
		}
		if peeked != tag {
			if c.observer != nil {
				c.observer.OnCheckpoint(false)
			}
			return 0, nil
		}
		c.fr.Consume()
		if c.observer != nil {
			c.observer.OnCheckpoint(true)
		}
		return 1, nil
	default:
		return 0, nil
	}
}

// ShutdownRequest records a SHUTDOWN event in RECORD. PLAY never calls
// this directly: SHUTDOWN is handled inline by skipAsyncEvents, which
// invokes Hooks.Shutdown when it passes over the tag.
func (c *Controller) ShutdownRequest() error {
	if c.mode != wire.ModeRecord {
		return nil
	}
	if err := c.flushInstructionCount(); err != nil {
		return err
	}
	return c.fr.PutEvent(wire.EventShutdown)
}

// SaveClock records a clock observation in RECORD and updates the cache.
func (c *Controller) SaveClock(kind int, v int64) error {
	if c.mode != wire.ModeRecord {
		c.clock.Set(kind, v)
		return nil
	}
	if err := c.flushInstructionCount(); err != nil {
		return err
	}
	if err := c.fr.PutEvent(byte(wire.EventClock + kind)); err != nil {
		return err
	}
	if err := c.fr.Codec().PutQword(v); err != nil {
		return err
	}
	c.clock.Set(kind, v)
	return nil
}

// ReadClock returns the cached value for a clock kind, advancing the
// read cursor past a matching CLOCK tag in PLAY first.
func (c *Controller) ReadClock(kind int) (int64, error) {
	if c.mode != wire.ModePlay {
		return c.clock.Get(kind), nil
	}
	seen, err := c.skipAsyncEvents(byte(wire.EventClock + kind))
	if err != nil {
		return 0, err
	}
	if seen {
		if err := c.readNextClock(kind); err != nil {
			return 0, err
		}
	}
	return c.clock.Get(kind), nil
}

// readNextClock consumes a peeked CLOCK tag matching kind (or any clock
// tag if kind == -1), updating the cache. A non-matching clock tag, or
// no clock tag at all, is left peeked for a later call to answer.
func (c *Controller) readNextClock(kind int) error {
	tag, err := c.fr.FetchDataKind()
	if err != nil {
		return err
	}
	if tag < wire.EventClock || tag >= wire.EventClock+wire.ClockCount {
		return nil
	}
	peekedKind := int(tag - wire.EventClock)
	if kind != -1 && peekedKind != kind {
		return nil
	}
	c.fr.Consume()
	v, err := c.fr.Codec().GetQword()
	if err != nil {
		return err
	}
	c.clock.Set(peekedKind, v)
	return nil
}

// skipAsyncEvents is the central PLAY peek loop (spec.md §4.4): it
// consumes SHUTDOWN and SAVE_VM_BEGIN inline and stops at the next
// INSTRUCTION (consuming its count) or any other tag (left peeked). It
// reports whether stopTag was the tag that ended the loop.
func (c *Controller) skipAsyncEvents(stopTag byte) (bool, error) {
	for {
		tag, err := c.fr.FetchDataKind()
		if err != nil {
			return false, err
		}
		seenStop := tag == stopTag
		switch tag {
		case wire.EventShutdown:
			c.fr.Consume()
			c.hooks.Shutdown()
			if seenStop {
				return true, nil
			}
			continue
		case wire.EventSaveVMBegin:
			c.fr.Consume()
			c.hooks.SkipSnapshot()
			if seenStop {
				return true, nil
			}
			continue
		case wire.EventInstruction:
			c.fr.Consume()
			cnt, err := c.fr.Codec().GetDword()
			if err != nil {
				return false, err
			}
			c.pendingRun = cnt
			return seenStop, nil
		default:
			return seenStop, nil
		}
	}
}

// skipAsyncEventsUntil wraps skipAsyncEvents with a fatal error when
// kind is never reached, except the allowance that an ASYNC tag ahead
// of an expected INSTRUCTION is not fatal — the caller drains it next.
func (c *Controller) skipAsyncEventsUntil(kind byte) error {
	seen, err := c.skipAsyncEvents(kind)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if peeked, pending := c.fr.Peeked(); kind == wire.EventInstruction && pending && peeked == wire.EventAsync {
		return nil
	}
	peeked, _ := c.fr.Peeked()
	return replayerr.New("skip_async_events_until", c.step, replayerr.KindUnexpectedKind,
		fmt.Sprintf("want=%d got=%d", kind, peeked))
}
