package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLogPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session.replay")
}

func TestConfigureRecordThenPlayRoundTrip(t *testing.T) {
	path := tempLogPath(t)

	recCollab := NewMockCollaborator()
	rec, err := Configure(DefaultConfig(path), ModeRecord, recCollab, nil)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, err := rec.Controller().Instruction(false)
		require.NoError(t, err)
	}
	require.NoError(t, rec.Finish())
	// Finish is idempotent.
	require.NoError(t, rec.Finish())

	playCollab := NewMockCollaborator()
	play, err := Configure(DefaultConfig(path), ModePlay, playCollab, nil)
	require.NoError(t, err)

	executed := 0
	for i := 0; i < 100; i++ {
		ran, err := play.Controller().Instruction(true)
		require.NoError(t, err)
		if ran {
			executed++
		}
		if play.Controller().Step() == 7 {
			break
		}
	}
	assert.Equal(t, 7, executed)
	assert.EqualValues(t, 7, play.Controller().Step())
	require.NoError(t, play.Finish())
}

func TestConfigureRequiresFilename(t *testing.T) {
	_, err := Configure(Config{}, ModeRecord, NewMockCollaborator(), nil)
	assert.Error(t, err)
}

func TestFinishOnNilSessionIsNoOp(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Finish())
}

func TestSessionSnapshotTimerRunsAtStartup(t *testing.T) {
	path := tempLogPath(t)
	collab := NewMockCollaborator()
	rec, err := Configure(DefaultConfig(path), ModeRecord, collab, nil)
	require.NoError(t, err)

	rec.InitTimer()
	// InitTimer starts a goroutine that takes one startup snapshot;
	// Finish stops it and waits for completion.
	require.NoError(t, rec.Finish())

	assert.Equal(t, 1, rec.Index().Len())
	counts := collab.CallCounts()
	assert.Equal(t, 1, counts["pause"])
	assert.Equal(t, 1, counts["resume"])
	assert.Equal(t, 1, counts["save_vmstate"])
}

func TestSessionSuffixDefault(t *testing.T) {
	cfg := DefaultConfig("x.replay")
	assert.Equal(t, DefaultSuffix, cfg.SuffixOrDefault())

	cfg.Suffix = "custom_qcow"
	assert.Equal(t, "custom_qcow", cfg.SuffixOrDefault())
}

func TestConfigureWiresDefaultObserverIntoMetrics(t *testing.T) {
	path := tempLogPath(t)
	rec, err := Configure(DefaultConfig(path), ModeRecord, NewMockCollaborator(), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := rec.Controller().Instruction(false)
		require.NoError(t, err)
	}
	_, err = rec.Controller().Checkpoint(0)
	require.NoError(t, err)
	require.NoError(t, rec.Finish())

	snap := rec.MetricsSnapshot()
	assert.EqualValues(t, 3, snap.InstructionsRecorded)
	assert.EqualValues(t, 1, snap.CheckpointsHit)
}

func TestPlayConfigureRejectsVersionMismatch(t *testing.T) {
	path := tempLogPath(t)
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Configure(DefaultConfig(path), ModePlay, NewMockCollaborator(), nil)
	assert.Error(t, err)
}
