// Package asyncqueue implements the Async Event Queue (spec.md §4.3): a
// FIFO of tagged events with record-time serialization and play-time
// match-and-dispatch, guarded by a mutex that is released before
// dispatch runs so a handler can safely re-enter the queue.
package asyncqueue

import "github.com/vmreplay/vmreplay/internal/wire"

// Kind identifies the payload variant carried by an Event, mirroring
// the async event kinds in spec.md §3.
type Kind int

const (
	KindBH Kind = iota
	KindThread
	KindInput
	KindInputSync
	KindNetwork
	KindChar
	KindUSBCtrl
	KindUSBData
	KindUSBIso
)

func (k Kind) valid() bool { return k >= KindBH && k <= KindUSBIso }

// InputEventKind distinguishes the three shapes of InputEvent payload
// (spec.md §6.1).
type InputEventKind uint32

const (
	InputKey InputEventKind = iota
	InputButton
	InputMoveAbs
	InputMoveRel
)

// InputEvent is the fully-specified wire payload for KindInput.
type InputEvent struct {
	Kind    InputEventKind
	KeyCode uint32 // key number/qcode, when Kind == InputKey
	Down    bool   // key/button down flag
	Button  uint32 // button number, when Kind == InputButton
	Axis    uint32 // axis number, when Kind is a move event
	Value   int32  // relative delta or absolute value
}

// NetworkPacket is the wire payload for KindNetwork.
type NetworkPacket struct {
	PacketID uint64
	ClientID int32
	Data     []byte
}

// CharEvent is the wire payload for KindChar.
type CharEvent struct {
	DriverID byte
	Data     []byte
}

// USBTransfer is the wire payload for KindUSBCtrl/KindUSBData. In
// resolves the Open Question in spec.md §9 about USB IN/OUT direction
// being re-derived from the endpoint at read time: direction is
// recorded directly in the log instead, so replay cannot mis-decode it
// if the endpoint is renumbered between record and replay.
type USBTransfer struct {
	ID           uint64
	Status       uint32
	ActualLength uint32
	In           bool // true for IN transfers, which carry Data
	Data         []byte
}

// USBIsoTransfer is the wire payload for KindUSBIso: one buffer per
// packet, present only for IN transfers.
type USBIsoTransfer struct {
	ID      uint64
	Status  uint32
	In      bool
	Packets [][]byte
}

// Event is the in-memory queued event: a tagged variant over the finite
// set of async kinds (spec.md §9's "opaque void* payload" design note),
// plus the FIFO correlation id. AnyID (wire.AnyID) matches any id of
// the same kind.
type Event struct {
	Kind Kind
	ID   uint64

	// BH and Thread carry collaborator-owned handles with no wire
	// representation beyond ID; everything else is fully specified on
	// the wire and decoded straight into the typed fields below.
	BH         any
	ThreadPool any
	ThreadJob  any

	Input   *InputEvent
	Network *NetworkPacket
	Char    *CharEvent
	USB     *USBTransfer
	USBIso  *USBIsoTransfer
}

func (e *Event) matches(kind Kind, id uint64) bool {
	if e.Kind != kind {
		return false
	}
	return id == wire.AnyID || e.ID == wire.AnyID || e.ID == id
}
