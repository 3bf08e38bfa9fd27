package replay

import (
	"sync"

	"github.com/vmreplay/vmreplay/internal/asyncqueue"
)

// MockCollaborator provides a mock implementation of Collaborator for
// testing, tracking every call for verification the way the teacher's
// MockBackend tracks readCalls/writeCalls.
type MockCollaborator struct {
	mu sync.Mutex

	bh         []any
	threads    [][2]any
	inputs     []asyncqueue.InputEvent
	inputSyncs int
	networks   []asyncqueue.NetworkPacket
	chars      []asyncqueue.CharEvent
	usb        []*asyncqueue.USBTransfer
	usbIso     []*asyncqueue.USBIsoTransfer

	shutdownCalls     int
	skipSnapshotCalls int

	pauseCalls  int
	resumeCalls int
	savedNames  []string

	loadedOffsets []uint64
	replayCalls   [][2]uint64
	breakpoints   map[uint64]bool
	dispatchedBPs []uint64

	// step drives ReplayForward: the mock advances it from whatever
	// LoadSnapshot last set, one unit per onStep call, up to target.
	step uint64
}

// NewMockCollaborator creates an empty MockCollaborator. breakpoints
// (optional) marks which steps IsBreakpoint should report as true.
func NewMockCollaborator(breakpoints ...uint64) *MockCollaborator {
	bp := make(map[uint64]bool, len(breakpoints))
	for _, b := range breakpoints {
		bp[b] = true
	}
	return &MockCollaborator{breakpoints: bp}
}

// --- asyncqueue.Dispatcher ---

func (m *MockCollaborator) DispatchBH(handle any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bh = append(m.bh, handle)
}

func (m *MockCollaborator) DispatchThread(pool, job any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, [2]any{pool, job})
}

func (m *MockCollaborator) DispatchInput(evt asyncqueue.InputEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, evt)
}

func (m *MockCollaborator) DispatchInputSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputSyncs++
}

func (m *MockCollaborator) DispatchNetwork(pkt asyncqueue.NetworkPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networks = append(m.networks, pkt)
}

func (m *MockCollaborator) DispatchChar(evt asyncqueue.CharEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chars = append(m.chars, evt)
}

func (m *MockCollaborator) DispatchUSB(kind asyncqueue.Kind, xfer *asyncqueue.USBTransfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usb = append(m.usb, xfer)
}

func (m *MockCollaborator) DispatchUSBIso(xfer *asyncqueue.USBIsoTransfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usbIso = append(m.usbIso, xfer)
}

// --- controller.Hooks ---

func (m *MockCollaborator) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalls++
}

func (m *MockCollaborator) SkipSnapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipSnapshotCalls++
}

// --- snapshot.Hooks ---

func (m *MockCollaborator) PauseVM() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return nil
}

func (m *MockCollaborator) ResumeVM() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	return nil
}

func (m *MockCollaborator) SaveVMState(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedNames = append(m.savedNames, name)
	return nil
}

// --- snapshot.Collaborator ---

func (m *MockCollaborator) LoadSnapshot(offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadedOffsets = append(m.loadedOffsets, offset)
	m.step = offset
	return nil
}

func (m *MockCollaborator) ReplayForward(target uint64, onStep func(step uint64)) error {
	m.mu.Lock()
	from := m.step
	m.mu.Unlock()

	for {
		m.mu.Lock()
		cur := m.step
		m.mu.Unlock()
		if cur >= target {
			break
		}
		m.mu.Lock()
		m.step++
		next := m.step
		m.mu.Unlock()
		if onStep != nil {
			onStep(next)
		}
	}

	m.mu.Lock()
	m.replayCalls = append(m.replayCalls, [2]uint64{from, target})
	m.mu.Unlock()
	return nil
}

func (m *MockCollaborator) IsBreakpoint(step uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakpoints[step]
}

func (m *MockCollaborator) DispatchBreakpoint(step uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchedBPs = append(m.dispatchedBPs, step)
}

// --- testing utility accessors ---

// Step reports the mock's current simulated step, the position
// LoadSnapshot/ReplayForward last left it at.
func (m *MockCollaborator) Step() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// CallCounts returns the number of times each dispatch/lifecycle hook
// has been called, keyed by hook name.
func (m *MockCollaborator) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"bh":            len(m.bh),
		"thread":        len(m.threads),
		"input":         len(m.inputs),
		"input_sync":    m.inputSyncs,
		"network":       len(m.networks),
		"char":          len(m.chars),
		"usb":           len(m.usb),
		"usb_iso":       len(m.usbIso),
		"shutdown":      m.shutdownCalls,
		"skip_snapshot": m.skipSnapshotCalls,
		"pause":         m.pauseCalls,
		"resume":        m.resumeCalls,
		"save_vmstate":  len(m.savedNames),
		"load_snapshot": len(m.loadedOffsets),
	}
}

// Compile-time interface check.
var _ Collaborator = (*MockCollaborator)(nil)
