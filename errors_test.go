package replay

import (
	"errors"
	"io"
	"testing"

	"github.com/vmreplay/vmreplay/internal/replayerr"
)

func TestErrorMessageIncludesStepAndKind(t *testing.T) {
	err := replayerr.New("checkpoint", 42, KindUnexpectedKind, "want=96 got=24")

	if err.Op != "checkpoint" {
		t.Errorf("Expected Op=checkpoint, got %s", err.Op)
	}
	if err.Step != 42 {
		t.Errorf("Expected Step=42, got %d", err.Step)
	}

	expected := "replay: checkpoint at step 42: unexpected event kind (want=96 got=24)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorWrapPreservesInner(t *testing.T) {
	err := replayerr.Wrap("get_qword", 7, KindTruncatedLog, io.ErrUnexpectedEOF)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected errors.Is to find the wrapped io.ErrUnexpectedEOF")
	}
	if err.Unwrap() != io.ErrUnexpectedEOF {
		t.Errorf("expected Unwrap() to return the inner error")
	}
}

func TestIsKind(t *testing.T) {
	var err error = replayerr.New("read_header", 0, KindVersionMismatch, "got=2 want=1")

	if !IsKind(err, KindVersionMismatch) {
		t.Errorf("expected IsKind to match KindVersionMismatch")
	}
	if IsKind(err, KindTruncatedLog) {
		t.Errorf("expected IsKind not to match KindTruncatedLog")
	}
	if IsKind(nil, KindTruncatedLog) {
		t.Errorf("expected IsKind(nil, ...) to be false")
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	a := replayerr.New("checkpoint", 1, KindUnexpectedKind, "a")
	b := replayerr.New("read_clock", 99, KindUnexpectedKind, "b")
	c := replayerr.New("checkpoint", 1, KindTruncatedLog, "a")

	if !errors.Is(a, b) {
		t.Errorf("expected errors with the same Kind to match via Is")
	}
	if errors.Is(a, c) {
		t.Errorf("expected errors with different Kind not to match via Is")
	}
}
