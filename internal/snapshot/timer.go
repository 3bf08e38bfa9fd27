package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmreplay/vmreplay/internal/controller"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Hooks is the collaborator surface the auto-snapshot timer drives
// (spec.md §4.6): pausing/resuming the guest and serializing its state
// under a name the reverse-execution driver can later hand back to the
// same collaborator when restoring.
type Hooks interface {
	PauseVM() error
	ResumeVM() error
	SaveVMState(name string) error
}

// Observer receives a notification each time the timer completes a
// snapshot, the metrics-collection seam described in spec.md §6.3.
type Observer interface {
	OnSnapshot(taken bool)
}

// Config configures a Timer.
type Config struct {
	Period     time.Duration // 0 means snapshot once at startup only (wire.DefaultPeriod)
	Controller *controller.Controller
	Index      *Index
	Framer     *framer.Framer
	Hooks      Hooks
	Observer   Observer
	Logger     *logging.Logger
}

// Timer drives the periodic auto-snapshot in RECORD mode. It owns no
// goroutine until Start is called and is safe to Stop from any
// goroutine once started.
type Timer struct {
	cfg    Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTimer creates a Timer from cfg. Logger may be nil, in which case
// snapshot failures are silently swallowed: Stop returns nothing, so
// the logger is the only place a failure is reported.
func NewTimer(cfg Config) *Timer {
	return &Timer{cfg: cfg}
}

// Start begins taking snapshots: one immediately, then one every
// Period until the context is canceled or Stop is called. A Period of
// zero (wire.DefaultPeriod) takes the startup snapshot and returns
// without starting a recurring loop.
func (t *Timer) Start(ctx context.Context) {
	if t.cfg.Period <= 0 {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.snapshotOnce(); err != nil {
				t.logf("startup snapshot failed: %v", err)
			}
		}()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	go t.loop(loopCtx)
}

// Stop cancels the recurring loop, if any, and waits for it to exit.
func (t *Timer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Timer) loop(ctx context.Context) {
	defer t.wg.Done()

	if err := t.snapshotOnce(); err != nil {
		t.logf("startup snapshot failed: %v", err)
		return
	}

	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.snapshotOnce(); err != nil {
				t.logf("periodic snapshot failed: %v", err)
				return
			}
		}
	}
}

func (t *Timer) logf(format string, args ...any) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Error(fmt.Sprintf(format, args...))
	}
}

// snapshotOnce runs the savevm sequence (spec.md §4.6): flush pending
// instructions, write SAVE_VM_BEGIN at the offset the index entry will
// reference, pause the guest, serialize its state, append the index
// entry, write SAVE_VM_END, resume. The index entry points at the
// offset *before* SAVE_VM_BEGIN so a PLAY-side reverse seek lands just
// ahead of the tag it needs to skip past (spec.md §4.4's SkipSnapshot).
func (t *Timer) snapshotOnce() error {
	c := t.cfg.Controller
	fr := t.cfg.Framer

	if err := c.FlushInstructions(); err != nil {
		return err
	}
	offsetBefore, err := fr.Codec().Offset()
	if err != nil {
		return err
	}
	if err := fr.PutEvent(wire.EventSaveVMBegin); err != nil {
		return err
	}
	if err := t.cfg.Hooks.PauseVM(); err != nil {
		return err
	}
	name := fmt.Sprintf("replay-%d", c.Step())
	if err := t.cfg.Hooks.SaveVMState(name); err != nil {
		return err
	}
	t.cfg.Index.Append(uint64(offsetBefore), c.Step())
	if err := fr.PutEvent(wire.EventSaveVMEnd); err != nil {
		return err
	}
	if t.cfg.Observer != nil {
		t.cfg.Observer.OnSnapshot(true)
	}
	return t.cfg.Hooks.ResumeVM()
}
