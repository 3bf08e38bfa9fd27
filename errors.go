package replay

import (
	"errors"

	"github.com/vmreplay/vmreplay/internal/replayerr"
)

// Error is the structured error surfaced to callers of the root
// package, a thin re-export of internal/replayerr.Error so session
// code outside internal/ doesn't need to import an internal package
// directly (spec.md §7).
type Error = replayerr.Error

// Kind re-exports the replay error categories.
type Kind = replayerr.Kind

// Error kinds, all fatal to the session except where an operation
// documents a recoverable return value instead (checkpoint mismatch,
// queue overflow in PLAY).
const (
	KindTruncatedLog    = replayerr.KindTruncatedLog
	KindVersionMismatch = replayerr.KindVersionMismatch
	KindUnexpectedKind  = replayerr.KindUnexpectedKind
	KindQueueOverflow   = replayerr.KindQueueOverflow
	KindQueueUnderflow  = replayerr.KindQueueUnderflow
	KindUnknownAsync    = replayerr.KindUnknownAsync
	KindMissingClient   = replayerr.KindMissingClient
	KindModeConflict    = replayerr.KindModeConflict
	KindSnapshotAlloc   = replayerr.KindSnapshotAlloc
)

// IsKind reports whether err is a *replay.Error of the given kind,
// unwrapping through errors.As.
func IsKind(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}
