// Package replay provides the main API for recording and replaying a
// deterministic guest execution: a log-backed session tying the Log
// Codec, Event Framer, Clock Cache, Async Event Queue, Replay
// Controller, and Snapshot Index together behind one entry point.
package replay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vmreplay/vmreplay/internal/asyncqueue"
	"github.com/vmreplay/vmreplay/internal/clock"
	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/controller"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/snapshot"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Collaborator bundles every hook the replay core calls into a running
// emulator (spec.md §6.2): async event dispatch, VM lifecycle, state
// save/load, shutdown, and the reverse-execution breakpoint surface. A
// caller implements this once and hands it to Configure.
type Collaborator interface {
	asyncqueue.Dispatcher
	controller.Hooks
	snapshot.Hooks
	snapshot.Collaborator
}

// Config holds the options recognized when activating record/replay
// (spec.md §6.3).
type Config struct {
	// Filename is the log file path. Required.
	Filename string

	// Suffix is the filename suffix for disk images used in snapshots.
	Suffix string

	// ICount is the left-shift applied to the instruction counter when
	// deriving virtual CPU time. 0 disables icount-based clock.
	ICount int

	// Period is the auto-snapshot interval in RECORD mode. 0 means
	// snapshot once at startup only.
	Period time.Duration
}

// DefaultConfig returns a Config with spec.md §6.3's defaults, reading
// filename from the caller.
func DefaultConfig(filename string) Config {
	return Config{
		Filename: filename,
		Suffix:   wire.DefaultSuffix,
		ICount:   wire.DefaultICount,
		Period:   wire.DefaultPeriod,
	}
}

// Options contains additional options for session creation.
type Options struct {
	// Context for cancellation (if nil, uses context.Background()).
	Context context.Context

	// Logger for debug/info messages (if nil, uses logging.Default()).
	Logger *logging.Logger

	// Observer for metrics collection (if nil, uses a MetricsObserver
	// wrapping a fresh Metrics instance).
	Observer Observer
}

// Session is the single owning value spec.md §9 calls for in place of
// the original's process-wide globals: current_step, mode, the log
// file handle, and the async queue all live here, passed explicitly to
// every operation through the Session's methods.
type Session struct {
	mode   wire.Mode
	cfg    Config
	file   *os.File
	codec  *codec.Codec
	framer *framer.Framer

	clock      *clock.Cache
	queue      *asyncqueue.Queue
	controller *controller.Controller
	index      *snapshot.Index
	driver     *snapshot.Driver
	timer      *snapshot.Timer
	timerStarted bool

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	finished  bool
	collab    Collaborator
}

// Configure opens (RECORD: creates/truncates; PLAY: reads) the log
// file named by cfg.Filename and builds a Session bound to collab
// (spec.md §6.3's `configure(opts, mode)`). Configuring twice over the
// same *Session is not supported; callers create a fresh Session per
// activation.
func Configure(cfg Config, mode wire.Mode, collab Collaborator, opts *Options) (*Session, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("replay: configure: filename is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if opts.Observer != nil {
		observer = opts.Observer
	}

	var flags int
	if mode == wire.ModeRecord {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	} else {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(cfg.Filename, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("replay: configure: open %s: %w", cfg.Filename, err)
	}

	c := codec.New(f)
	var idx *snapshot.Index
	if mode == wire.ModeRecord {
		if err := snapshot.WriteHeader(c, 0); err != nil {
			f.Close()
			return nil, err
		}
		idx = snapshot.New()
	} else {
		idx, err = snapshot.Load(c)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := c.SeekTo(snapshot.HeaderSize); err != nil {
		f.Close()
		return nil, err
	}

	fr := framer.New(c)
	clk := clock.New(cfg.ICount)
	q := asyncqueue.New(collab, logger)
	q.SetObserver(observer)
	ctrl := controller.New(mode, fr, clk, q, collab, logger)
	ctrl.SetObserver(observer)
	driver := snapshot.NewDriver(idx, collab)

	sessCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		mode:       mode,
		cfg:        cfg,
		file:       f,
		codec:      c,
		framer:     fr,
		clock:      clk,
		queue:      q,
		controller: ctrl,
		index:      idx,
		driver:     driver,
		metrics:    metrics,
		observer:   observer,
		logger:     logger,
		ctx:        sessCtx,
		cancel:     cancel,
		collab:     collab,
	}

	if mode == wire.ModeRecord {
		s.timer = snapshot.NewTimer(snapshot.Config{
			Period:     cfg.Period,
			Controller: ctrl,
			Index:      idx,
			Framer:     fr,
			Hooks:      collab,
			Observer:   observer,
			Logger:     logger,
		})
	}

	return s, nil
}

// InitTimer starts the periodic auto-snapshot timer in RECORD mode
// (spec.md §6.3's `init_timer()`). A no-op in PLAY mode, or if called
// more than once.
func (s *Session) InitTimer() {
	if s.mode != wire.ModeRecord || s.timer == nil || s.timerStarted {
		return
	}
	s.timerStarted = true
	s.timer.Start(s.ctx)
}

// Finish stops the auto-snapshot timer, dispatches any async events
// still queued, flushes any pending instruction count, writes the END
// tag and snapshot index in RECORD mode, and closes the log file
// (spec.md §6.3's `finish()`). Idempotent: a
// second call, or a call on a zero-value *Session, is a no-op.
func (s *Session) Finish() error {
	if s == nil || s.finished {
		return nil
	}
	s.finished = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	s.queue.Flush()

	var err error
	if s.mode == wire.ModeRecord {
		if ferr := s.controller.FlushInstructions(); ferr != nil {
			err = ferr
		}
		if err == nil {
			if ferr := s.framer.PutEvent(wire.EventEnd); ferr != nil {
				err = ferr
			}
		}
		if err == nil {
			if ferr := snapshot.Store(s.codec, s.index); ferr != nil {
				err = ferr
			}
		}
	}

	s.metrics.Stop()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Mode reports the session's replay mode.
func (s *Session) Mode() wire.Mode { return s.mode }

// Controller exposes the Replay Controller for instruction-loop,
// checkpoint, and clock operations.
func (s *Session) Controller() *controller.Controller { return s.controller }

// Queue exposes the Async Event Queue for collaborator-side enqueue
// calls (AddBH, AddInput, etc.).
func (s *Session) Queue() *asyncqueue.Queue { return s.queue }

// Clock exposes the Clock Cache.
func (s *Session) Clock() *clock.Cache { return s.clock }

// Index exposes the Snapshot Index.
func (s *Session) Index() *snapshot.Index { return s.index }

// Driver exposes the Reverse-Execution Driver.
func (s *Session) Driver() *snapshot.Driver { return s.driver }

// Metrics returns the session's metrics counters.
func (s *Session) Metrics() *Metrics { return s.metrics }

// MetricsSnapshot returns a point-in-time snapshot of session metrics.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// SuffixOrDefault returns cfg.Suffix, or wire.DefaultSuffix if unset.
func (cfg Config) SuffixOrDefault() string {
	if cfg.Suffix == "" {
		return wire.DefaultSuffix
	}
	return cfg.Suffix
}
