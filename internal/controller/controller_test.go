package controller

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmreplay/vmreplay/internal/asyncqueue"
	"github.com/vmreplay/vmreplay/internal/clock"
	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/wire"
)

type seekBuf struct {
	data []byte
	pos  int64
}

func (b *seekBuf) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuf) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (b *seekBuf) Seek(offset int64, whence int) (int64, error) {
	var np int64
	switch whence {
	case io.SeekStart:
		np = offset
	case io.SeekCurrent:
		np = b.pos + offset
	case io.SeekEnd:
		np = int64(len(b.data)) + offset
	}
	b.pos = np
	return np, nil
}

// rewind seeks back to the start of the buffer.
func (b *seekBuf) rewind() error {
	_, err := b.Seek(0, io.SeekStart)
	return err
}

func testLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func newController(mode wire.Mode, buf *seekBuf) *Controller {
	fr := framer.New(codec.New(buf))
	q := asyncqueue.New(nil, testLogger())
	return New(mode, fr, clock.New(0), q, nil, testLogger())
}

// S1: RECORD emits 10 INSTRUCTION groups of counts {1..10}; PLAY should
// consume 55 instructions and land at step 55.
func TestInstructionRunSums(t *testing.T) {
	buf := &seekBuf{}
	rec := newController(wire.ModeRecord, buf)
	counts := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, n := range counts {
		for i := uint32(0); i < n; i++ {
			_, err := rec.Instruction(false)
			require.NoError(t, err)
		}
		require.NoError(t, rec.FlushInstructions())
	}
	require.NoError(t, rec.fr.Codec().PutByte(wire.EventEnd))
	assert.EqualValues(t, 55, rec.Step())

	require.NoError(t, buf.rewind())
	play := newController(wire.ModePlay, buf)
	executed := 0
	for i := 0; i < 1000; i++ {
		ran, err := play.Instruction(true)
		require.NoError(t, err)
		if ran {
			executed++
		}
		if play.Step() == 55 {
			break
		}
	}
	assert.Equal(t, 55, executed)
	assert.EqualValues(t, 55, play.Step())
}

// S2: RECORD: INSTRUCTION(5), INTERRUPT, INSTRUCTION(5), END. PLAY:
// after 5 instructions interrupt() returns true once, then false.
func TestInterruptAtInstructionBoundary(t *testing.T) {
	buf := &seekBuf{}
	rec := newController(wire.ModeRecord, buf)
	for i := 0; i < 5; i++ {
		_, err := rec.Instruction(false)
		require.NoError(t, err)
	}
	seen, err := rec.Interrupt()
	require.NoError(t, err)
	require.True(t, seen)
	for i := 0; i < 5; i++ {
		_, err := rec.Instruction(false)
		require.NoError(t, err)
	}
	require.NoError(t, rec.FlushInstructions())
	require.NoError(t, rec.fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	play := newController(wire.ModePlay, buf)
	for i := 0; i < 5; i++ {
		ran, err := play.Instruction(true)
		require.NoError(t, err)
		require.True(t, ran)
	}
	interrupted, err := play.Interrupt()
	require.NoError(t, err)
	assert.True(t, interrupted)

	for i := 0; i < 5; i++ {
		ran, err := play.Instruction(true)
		require.NoError(t, err)
		require.True(t, ran)
	}
	interrupted, err = play.Interrupt()
	require.NoError(t, err)
	assert.False(t, interrupted)
}

// S4: RECORD calls checkpoint(5) with an empty queue; PLAY checkpoint(5)
// returns 1, PLAY checkpoint(6) at the same point returns 0.
func TestCheckpointMatchAndMismatch(t *testing.T) {
	buf := &seekBuf{}
	rec := newController(wire.ModeRecord, buf)
	ok, err := rec.Checkpoint(5)
	require.NoError(t, err)
	require.Equal(t, 1, ok)
	require.NoError(t, rec.fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	playMatch := newController(wire.ModePlay, buf)
	result, err := playMatch.Checkpoint(5)
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	require.NoError(t, buf.rewind())
	playMismatch := newController(wire.ModePlay, buf)
	result, err = playMismatch.Checkpoint(6)
	require.NoError(t, err)
	assert.Equal(t, 0, result)
}

// S5: save_clock(VIRTUAL, 1000), INSTRUCTION(1), save_clock(VIRTUAL,
// 1050). PLAY reads 1000 then, after one instruction, 1050; a HOST
// read in between returns the previously cached HOST value.
func TestClockCaching(t *testing.T) {
	buf := &seekBuf{}
	rec := newController(wire.ModeRecord, buf)
	require.NoError(t, rec.SaveClock(wire.ClockVirtual, 1000))
	_, err := rec.Instruction(false)
	require.NoError(t, err)
	require.NoError(t, rec.FlushInstructions())
	require.NoError(t, rec.SaveClock(wire.ClockVirtual, 1050))
	require.NoError(t, rec.fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	play := newController(wire.ModePlay, buf)

	v, err := play.ReadClock(wire.ClockVirtual)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, v)

	// No HOST clock was ever recorded; reading it must return the
	// (zero) cached value without disturbing the pending VIRTUAL tag.
	h, err := play.ReadClock(wire.ClockHost)
	require.NoError(t, err)
	assert.EqualValues(t, 0, h)

	ran, err := play.Instruction(true)
	require.NoError(t, err)
	require.True(t, ran)

	v, err = play.ReadClock(wire.ClockVirtual)
	require.NoError(t, err)
	assert.EqualValues(t, 1050, v)
}

type countingObserver struct {
	instructions   int
	checkpointHits int
	checkpointMiss int
}

func (o *countingObserver) OnInstruction(bool) { o.instructions++ }
func (o *countingObserver) OnCheckpoint(hit bool) {
	if hit {
		o.checkpointHits++
	} else {
		o.checkpointMiss++
	}
}

func TestObserverReceivesInstructionAndCheckpointEvents(t *testing.T) {
	buf := &seekBuf{}
	rec := newController(wire.ModeRecord, buf)
	obs := &countingObserver{}
	rec.SetObserver(obs)

	_, err := rec.Instruction(false)
	require.NoError(t, err)
	_, err = rec.Instruction(false)
	require.NoError(t, err)
	require.NoError(t, rec.FlushInstructions())
	_, err = rec.Checkpoint(0)
	require.NoError(t, err)
	require.NoError(t, rec.fr.Codec().PutByte(wire.EventEnd))

	assert.Equal(t, 2, obs.instructions)
	assert.Equal(t, 1, obs.checkpointHits)

	require.NoError(t, buf.rewind())
	play := newController(wire.ModePlay, buf)
	playObs := &countingObserver{}
	play.SetObserver(playObs)

	ran, err := play.Instruction(true)
	require.NoError(t, err)
	require.True(t, ran)
	ran, err = play.Instruction(true)
	require.NoError(t, err)
	require.True(t, ran)
	result, err := play.Checkpoint(0)
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	assert.Equal(t, 2, playObs.instructions)
	assert.Equal(t, 1, playObs.checkpointHits)

	// A checkpoint that doesn't match the log reports a miss, not an error.
	buf2 := &seekBuf{}
	miss := newController(wire.ModePlay, buf2)
	missObs := &countingObserver{}
	miss.SetObserver(missObs)
	require.NoError(t, buf2.rewind())
	require.NoError(t, miss.fr.Codec().PutByte(wire.EventEnd))
	require.NoError(t, buf2.rewind())
	result, err = miss.Checkpoint(0)
	require.NoError(t, err)
	assert.Equal(t, 0, result)
	assert.Equal(t, 1, missObs.checkpointMiss)
}
