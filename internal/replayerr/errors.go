// Package replayerr defines the structured error type shared by every
// layer of the replay core (spec.md §7). All kinds are fatal to the
// session except where a specific operation documents otherwise.
package replayerr

import "fmt"

// Kind is the high-level error category.
type Kind string

const (
	KindTruncatedLog      Kind = "truncated log"
	KindVersionMismatch   Kind = "version mismatch"
	KindUnexpectedKind    Kind = "unexpected event kind"
	KindQueueOverflow     Kind = "queue overflow"
	KindQueueUnderflow    Kind = "queue underflow"
	KindUnknownAsync      Kind = "unknown async kind"
	KindMissingClient     Kind = "missing async client"
	KindModeConflict      Kind = "mode conflict"
	KindSnapshotAlloc     Kind = "snapshot index allocation failure"
)

// Error is a structured replay error carrying the step at which it was
// detected, for the diagnostic line spec.md §7 requires ("current step
// number and the offending kind/value").
type Error struct {
	Op    string // operation that failed, e.g. "read_events", "checkpoint"
	Step  uint64 // current_step at the point of failure
	Kind  Kind
	Value string // offending tag/kind/value, formatted by the caller
	Inner error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("replay: %s at step %d: %s", e.Op, e.Step, e.Kind)
	if e.Value != "" {
		msg += fmt.Sprintf(" (%s)", e.Value)
	}
	if e.Inner != nil {
		msg += fmt.Sprintf(": %v", e.Inner)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// New builds an Error for the given op/step/kind.
func New(op string, step uint64, kind Kind, value string) *Error {
	return &Error{Op: op, Step: step, Kind: kind, Value: value}
}

// Wrap attaches step/kind context to an underlying error (typically
// io.ErrUnexpectedEOF from the codec, turned into TruncatedLog).
func Wrap(op string, step uint64, kind Kind, inner error) *Error {
	return &Error{Op: op, Step: step, Kind: kind, Inner: inner}
}
