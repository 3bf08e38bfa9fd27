package asyncqueue

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/logging"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// seekBuf is a minimal growable in-memory codec.Stream for tests.
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

// mockDispatcher records every dispatched event for assertions.
type mockDispatcher struct {
	bh         []any
	threads    [][2]any
	inputs     []InputEvent
	inputSyncs int
	networks   []NetworkPacket
	chars      []CharEvent
	usb        []*USBTransfer
	usbIso     []*USBIsoTransfer
}

func (m *mockDispatcher) DispatchBH(handle any)         { m.bh = append(m.bh, handle) }
func (m *mockDispatcher) DispatchThread(pool, job any)  { m.threads = append(m.threads, [2]any{pool, job}) }
func (m *mockDispatcher) DispatchInput(evt InputEvent)  { m.inputs = append(m.inputs, evt) }
func (m *mockDispatcher) DispatchInputSync()            { m.inputSyncs++ }
func (m *mockDispatcher) DispatchNetwork(pkt NetworkPacket) { m.networks = append(m.networks, pkt) }
func (m *mockDispatcher) DispatchChar(evt CharEvent)    { m.chars = append(m.chars, evt) }
func (m *mockDispatcher) DispatchUSB(kind Kind, xfer *USBTransfer) {
	m.usb = append(m.usb, xfer)
}
func (m *mockDispatcher) DispatchUSBIso(xfer *USBIsoTransfer) { m.usbIso = append(m.usbIso, xfer) }

func newTestLogger() *logging.Logger {
	return logging.NewLogger(&logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func TestQueueImmediateDispatchWhenDisabled(t *testing.T) {
	d := &mockDispatcher{}
	q := New(d, newTestLogger())
	q.SetMode(wire.ModeRecord)
	// not enabled: dispatch runs immediately, nothing buffered
	q.AddInputSync()
	assert.Equal(t, 1, d.inputSyncs)
	assert.False(t, q.HasEvents())
}

func TestQueueBuffersWhenEnabledAndRecording(t *testing.T) {
	d := &mockDispatcher{}
	q := New(d, newTestLogger())
	q.SetMode(wire.ModeRecord)
	q.Enable()
	q.AddInputSync()
	assert.True(t, q.HasEvents())
	assert.Equal(t, 0, d.inputSyncs)
}

func TestSaveReadRoundTripDirectKinds(t *testing.T) {
	buf := &seekBuf{}
	recDispatcher := &mockDispatcher{}
	rec := New(recDispatcher, newTestLogger())
	rec.SetMode(wire.ModeRecord)
	rec.Enable()

	rec.AddInputSync()
	rec.AddInput(InputEvent{Kind: InputKey, KeyCode: 30, Down: true})
	rec.AddNetwork(NetworkPacket{PacketID: 7, ClientID: 2, Data: []byte("hello")})
	rec.AddChar(CharEvent{DriverID: 3, Data: []byte("serial")})

	fr := framer.New(codec.New(buf))
	require.NoError(t, rec.Save(fr, -1))
	require.NoError(t, fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	playDispatcher := &mockDispatcher{}
	play := New(playDispatcher, newTestLogger())
	play.SetMode(wire.ModePlay)

	playFr := framer.New(codec.New(buf))
	require.NoError(t, play.Read(playFr, -1))

	require.Equal(t, 1, playDispatcher.inputSyncs)
	require.Len(t, playDispatcher.inputs, 1)
	assert.Equal(t, uint32(30), playDispatcher.inputs[0].KeyCode)
	assert.True(t, playDispatcher.inputs[0].Down)
	require.Len(t, playDispatcher.networks, 1)
	assert.Equal(t, uint64(7), playDispatcher.networks[0].PacketID)
	assert.Equal(t, []byte("hello"), playDispatcher.networks[0].Data)
	require.Len(t, playDispatcher.chars, 1)
	assert.Equal(t, byte(3), playDispatcher.chars[0].DriverID)
	assert.Equal(t, []byte("serial"), playDispatcher.chars[0].Data)

	tag, err := playFr.FetchDataKind()
	require.NoError(t, err)
	assert.Equal(t, byte(wire.EventEnd), tag)
}

func TestSaveReadRoundTripBHCorrelatedKinds(t *testing.T) {
	buf := &seekBuf{}
	rec := New(&mockDispatcher{}, newTestLogger())
	rec.SetMode(wire.ModeRecord)
	rec.Enable()
	rec.AddBH("handle-42", 42)

	fr := framer.New(codec.New(buf))
	require.NoError(t, rec.Save(fr, -1))
	require.NoError(t, fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	playDispatcher := &mockDispatcher{}
	play := New(playDispatcher, newTestLogger())
	play.SetMode(wire.ModePlay)
	play.Enable()
	playFr := framer.New(codec.New(buf))

	// The matching in-memory BH has not been posted yet: Read must stop
	// without consuming the ASYNC tag or dispatching anything.
	require.NoError(t, play.Read(playFr, -1))
	assert.Empty(t, playDispatcher.bh)

	// Collaborator now posts the matching event; Read succeeds.
	play.AddBH("handle-42", 42)
	require.NoError(t, play.Read(playFr, -1))
	require.Len(t, playDispatcher.bh, 1)
	assert.Equal(t, "handle-42", playDispatcher.bh[0])

	tag, err := playFr.FetchDataKind()
	require.NoError(t, err)
	assert.Equal(t, byte(wire.EventEnd), tag)
}

// S3: RECORD enqueues BH id=7 then id=9, writing ASYNC,BH,7 then
// ASYNC,BH,9 in that order. PLAY enqueues id=9 then id=7 (reverse
// order); Read must still dispatch id=7 first because it matches the
// first ASYNC event in the log, regardless of FIFO enqueue order.
func TestAsyncBHMatchFollowsLogOrderNotEnqueueOrder(t *testing.T) {
	buf := &seekBuf{}
	rec := New(&mockDispatcher{}, newTestLogger())
	rec.SetMode(wire.ModeRecord)
	rec.Enable()
	rec.AddBH("bh-7", 7)
	rec.AddBH("bh-9", 9)

	fr := framer.New(codec.New(buf))
	require.NoError(t, rec.Save(fr, -1))
	require.NoError(t, fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	playDispatcher := &mockDispatcher{}
	play := New(playDispatcher, newTestLogger())
	play.SetMode(wire.ModePlay)
	play.Enable()
	play.AddBH("bh-9", 9)
	play.AddBH("bh-7", 7)

	playFr := framer.New(codec.New(buf))
	require.NoError(t, play.Read(playFr, -1))

	require.Len(t, playDispatcher.bh, 2)
	assert.Equal(t, "bh-7", playDispatcher.bh[0])
	assert.Equal(t, "bh-9", playDispatcher.bh[1])
}

func TestSaveReadRoundTripUSB(t *testing.T) {
	buf := &seekBuf{}
	rec := New(&mockDispatcher{}, newTestLogger())
	rec.SetMode(wire.ModeRecord)
	rec.Enable()
	rec.AddUSB(KindUSBData, 9, &USBTransfer{ID: 9, Status: 0, ActualLength: 4, In: true, Data: []byte("data")})

	fr := framer.New(codec.New(buf))
	require.NoError(t, rec.Save(fr, 5))
	require.NoError(t, fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	playDispatcher := &mockDispatcher{}
	play := New(playDispatcher, newTestLogger())
	play.SetMode(wire.ModePlay)
	play.Enable()
	playFr := framer.New(codec.New(buf))

	// Wrong opt: must not consume anything.
	require.NoError(t, play.Read(playFr, 6))
	assert.Empty(t, playDispatcher.usb)

	play.AddUSB(KindUSBData, 9, &USBTransfer{})
	require.NoError(t, play.Read(playFr, 5))
	require.Len(t, playDispatcher.usb, 1)
	assert.Equal(t, uint32(4), playDispatcher.usb[0].ActualLength)
	assert.True(t, playDispatcher.usb[0].In)
	assert.Equal(t, []byte("data"), playDispatcher.usb[0].Data)
}

func TestFlushRunsQueuedEventsWithoutRecording(t *testing.T) {
	d := &mockDispatcher{}
	q := New(d, newTestLogger())
	q.SetMode(wire.ModeRecord)
	q.Enable()
	q.AddInputSync()
	q.AddInputSync()
	require.True(t, q.HasEvents())
	q.Flush()
	assert.False(t, q.HasEvents())
	assert.Equal(t, 2, d.inputSyncs)
}

func TestClearDropsQueuedEventsWithoutDispatch(t *testing.T) {
	d := &mockDispatcher{}
	q := New(d, newTestLogger())
	q.SetMode(wire.ModeRecord)
	q.Enable()
	q.AddInputSync()
	q.Clear()
	assert.False(t, q.HasEvents())
	assert.Equal(t, 0, d.inputSyncs)
}

type countingObserver struct {
	dispatches int
	deferrals  int
}

func (o *countingObserver) OnAsyncDispatch(uint64) { o.dispatches++ }
func (o *countingObserver) OnAsyncDeferred()       { o.deferrals++ }

func TestObserverReceivesDispatchOnFlush(t *testing.T) {
	d := &mockDispatcher{}
	q := New(d, newTestLogger())
	obs := &countingObserver{}
	q.SetObserver(obs)
	q.SetMode(wire.ModeRecord)
	q.Enable()
	q.AddInputSync()
	q.AddInputSync()
	q.Flush()
	assert.Equal(t, 2, obs.dispatches)
}

func TestObserverReceivesDeferredOnUnmatchedRead(t *testing.T) {
	buf := &seekBuf{}
	rec := New(&mockDispatcher{}, newTestLogger())
	rec.SetMode(wire.ModeRecord)
	rec.Enable()
	rec.AddBH("handle-42", 42)

	fr := framer.New(codec.New(buf))
	require.NoError(t, rec.Save(fr, -1))
	require.NoError(t, fr.Codec().PutByte(wire.EventEnd))

	require.NoError(t, buf.rewind())
	play := New(&mockDispatcher{}, newTestLogger())
	play.SetMode(wire.ModePlay)
	play.Enable()
	obs := &countingObserver{}
	play.SetObserver(obs)
	playFr := framer.New(codec.New(buf))

	// No matching in-memory BH posted yet: Read defers.
	require.NoError(t, play.Read(playFr, -1))
	assert.Equal(t, 1, obs.deferrals)
	assert.Equal(t, 0, obs.dispatches)

	play.AddBH("handle-42", 42)
	require.NoError(t, play.Read(playFr, -1))
	assert.Equal(t, 1, obs.dispatches)
}
