package asyncqueue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Observer receives dispatch-timing events as the queue runs them, the
// metrics-collection seam described in spec.md §6.3's pluggable
// observer. Both methods must tolerate a nil Queue.observer internally;
// callers never need to check before calling SetObserver.
type Observer interface {
	OnAsyncDispatch(latencyNs uint64)
	OnAsyncDeferred()
}

// Dispatcher is the collaborator hook surface for async events
// (spec.md §6.2's "per-subsystem dispatch"). Implementations must be
// safe to call with the queue's internal lock released, since dispatch
// always runs unlocked and a handler may legally re-enter Add.
type Dispatcher interface {
	DispatchBH(handle any)
	DispatchThread(pool, job any)
	DispatchInput(evt InputEvent)
	DispatchInputSync()
	DispatchNetwork(pkt NetworkPacket)
	DispatchChar(evt CharEvent)
	DispatchUSB(kind Kind, xfer *USBTransfer)
	DispatchUSBIso(xfer *USBIsoTransfer)
}

// Queue is the FIFO of queued async events (spec.md §4.3).
type Queue struct {
	mu      sync.Mutex
	items   []*Event
	enabled bool
	mode    atomic.Int32 // wire.Mode

	dispatcher Dispatcher
	observer   Observer
	log        *logging.Logger

	// Read-side state, persisted across Read calls so a BH/THREAD/USB_*
	// event whose FIFO match is not yet available can be retried later
	// without re-reading its header bytes from the stream (mirrors the
	// read_event_kind/read_id/read_opt statics in replay_read_events).
	readPending bool
	readKind    Kind
	readID      uint64
	readOpt     int
}

// New creates a Queue. dispatcher may be nil only in tests that never
// exercise dispatch.
func New(dispatcher Dispatcher, log *logging.Logger) *Queue {
	return &Queue{dispatcher: dispatcher, log: log, readOpt: -1, readID: wire.AnyID}
}

// SetObserver installs an Observer to receive dispatch timing. May be
// called with nil to disable observation.
func (q *Queue) SetObserver(o Observer) {
	q.observer = o
}

// SetMode updates the session mode the queue uses to decide whether to
// buffer events or dispatch them immediately.
func (q *Queue) SetMode(m wire.Mode) {
	q.mode.Store(int32(m))
}

func (q *Queue) currentMode() wire.Mode {
	return wire.Mode(q.mode.Load())
}

// Enable allows enqueues to be buffered instead of dispatched immediately.
func (q *Queue) Enable() {
	q.mu.Lock()
	q.enabled = true
	q.mu.Unlock()
}

// Disable stops buffering; any already-queued events are flushed first.
func (q *Queue) Disable() {
	q.Flush()
	q.mu.Lock()
	q.enabled = false
	q.mu.Unlock()
}

func (q *Queue) run(e *Event) {
	if q.dispatcher == nil {
		return
	}
	start := time.Now()
	defer func() {
		if q.observer != nil {
			q.observer.OnAsyncDispatch(uint64(time.Since(start).Nanoseconds()))
		}
	}()
	switch e.Kind {
	case KindBH:
		q.dispatcher.DispatchBH(e.BH)
	case KindThread:
		q.dispatcher.DispatchThread(e.ThreadPool, e.ThreadJob)
	case KindInput:
		q.dispatcher.DispatchInput(*e.Input)
	case KindInputSync:
		q.dispatcher.DispatchInputSync()
	case KindNetwork:
		q.dispatcher.DispatchNetwork(*e.Network)
	case KindChar:
		q.dispatcher.DispatchChar(*e.Char)
	case KindUSBCtrl, KindUSBData:
		q.dispatcher.DispatchUSB(e.Kind, e.USB)
	case KindUSBIso:
		q.dispatcher.DispatchUSBIso(e.USBIso)
	}
}

// add is the shared enqueue path for all the typed Add* wrappers
// (spec.md §4.3's `add`): if disabled or the mode is NONE, dispatch
// immediately; otherwise append to the FIFO.
func (q *Queue) add(e *Event) {
	if !e.Kind.valid() {
		panic(fmt.Sprintf("asyncqueue: invalid kind %d", e.Kind))
	}

	q.mu.Lock()
	buffer := q.enabled && q.currentMode() != wire.ModeNone
	if buffer {
		q.items = append(q.items, e)
	}
	q.mu.Unlock()

	if !buffer {
		q.run(e)
	}
}

func (q *Queue) AddBH(handle any, id uint64) {
	q.add(&Event{Kind: KindBH, ID: id, BH: handle})
}

func (q *Queue) AddThread(pool, job any, id uint64) {
	q.add(&Event{Kind: KindThread, ID: id, ThreadPool: pool, ThreadJob: job})
}

func (q *Queue) AddInput(evt InputEvent) {
	e := evt
	q.add(&Event{Kind: KindInput, Input: &e})
}

func (q *Queue) AddInputSync() {
	q.add(&Event{Kind: KindInputSync})
}

func (q *Queue) AddNetwork(pkt NetworkPacket) {
	p := pkt
	q.add(&Event{Kind: KindNetwork, Network: &p})
}

func (q *Queue) AddChar(evt CharEvent) {
	e := evt
	q.add(&Event{Kind: KindChar, Char: &e})
}

func (q *Queue) AddUSB(kind Kind, id uint64, xfer *USBTransfer) {
	if kind != KindUSBCtrl && kind != KindUSBData {
		panic("asyncqueue: AddUSB requires KindUSBCtrl or KindUSBData")
	}
	q.add(&Event{Kind: kind, ID: id, USB: xfer})
}

func (q *Queue) AddUSBIso(id uint64, xfer *USBIsoTransfer) {
	q.add(&Event{Kind: KindUSBIso, ID: id, USBIso: xfer})
}

// HasEvents returns true if there are any unsaved events in the queue.
func (q *Queue) HasEvents() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// Flush runs every queued event now, in FIFO order, without recording
// anything — used at teardown and by Disable.
func (q *Queue) Flush() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		e := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		q.run(e)
	}
}

// Clear drops all queued events without running them — used before
// loading a new VM state mid-session.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
