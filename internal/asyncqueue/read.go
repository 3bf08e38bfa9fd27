package asyncqueue

import (
	"fmt"

	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Read consumes async events from the log that match opt (-1 for
// unconditional ASYNC events, or a checkpoint index for ASYNC_OPT
// events gated on that checkpoint). INPUT, INPUT_SYNC, NETWORK, and
// CHAR are fully reconstructed from the stream and dispatched directly.
// BH, THREAD, and the USB kinds carry only a correlation id on the
// wire; their real payload lives in an Event the collaborator already
// added to the FIFO, so Read searches for a (kind, id) match and stops
// without consuming the stream further if none is queued yet — the
// caller is expected to retry on a later call once the collaborator has
// caught up (spec.md §4.3's `read`, grounded on replay_read_events).
func (q *Queue) Read(fr *framer.Framer, opt int) error {
	for {
		tag, err := fr.FetchDataKind()
		if err != nil {
			return err
		}

		wantPlain := opt == -1 && tag == wire.EventAsync
		wantGated := opt != -1 && tag == wire.EventAsyncOpt
		if !wantPlain && !wantGated {
			return nil
		}

		if !q.readPending {
			if opt != -1 {
				b, err := fr.Codec().GetByte()
				if err != nil {
					return err
				}
				q.readOpt = int(b)
			} else {
				q.readOpt = -1
			}
			kb, err := fr.Codec().GetByte()
			if err != nil {
				return err
			}
			q.readKind = Kind(kb)
			q.readID = wire.AnyID
			q.readPending = true
		}

		if opt != q.readOpt {
			return nil
		}

		switch q.readKind {
		case KindInput:
			in, err := decodeInput(fr.Codec())
			if err != nil {
				return err
			}
			q.resetRead()
			fr.Consume()
			q.run(&Event{Kind: KindInput, Input: in})
			continue

		case KindInputSync:
			q.resetRead()
			fr.Consume()
			q.run(&Event{Kind: KindInputSync})
			continue

		case KindNetwork:
			pkt, err := decodeNetwork(fr.Codec())
			if err != nil {
				return err
			}
			q.resetRead()
			fr.Consume()
			q.run(&Event{Kind: KindNetwork, Network: pkt})
			continue

		case KindChar:
			ev, err := decodeChar(fr.Codec())
			if err != nil {
				return err
			}
			q.resetRead()
			fr.Consume()
			q.run(&Event{Kind: KindChar, Char: ev})
			continue

		case KindBH, KindThread, KindUSBCtrl, KindUSBData, KindUSBIso:
			if q.readID == wire.AnyID {
				id, err := fr.Codec().GetQword()
				if err != nil {
					return err
				}
				q.readID = uint64(id)
			}
			// falls through to the FIFO search below

		default:
			return fmt.Errorf("asyncqueue: read: unknown async kind %d", q.readKind)
		}

		q.mu.Lock()
		idx := -1
		for i, e := range q.items {
			if e.matches(q.readKind, q.readID) {
				idx = i
				break
			}
		}
		var e *Event
		if idx >= 0 {
			e = q.items[idx]
			q.items = append(q.items[:idx], q.items[idx+1:]...)
		}
		q.mu.Unlock()

		if e == nil {
			// No matching event queued yet; leave the peeked tag and
			// cached kind/id pending for a later call.
			if q.observer != nil {
				q.observer.OnAsyncDeferred()
			}
			return nil
		}

		switch q.readKind {
		case KindUSBCtrl, KindUSBData:
			if err := decodeUSBInto(fr.Codec(), e); err != nil {
				return err
			}
		case KindUSBIso:
			if err := decodeUSBIsoInto(fr.Codec(), e); err != nil {
				return err
			}
		}

		q.resetRead()
		fr.Consume()
		q.run(e)
	}
}

func (q *Queue) resetRead() {
	q.readPending = false
	q.readKind = 0
	q.readID = wire.AnyID
	q.readOpt = -1
}

func decodeInput(c *codec.Codec) (*InputEvent, error) {
	kb, err := c.GetDword()
	if err != nil {
		return nil, err
	}
	in := &InputEvent{Kind: InputEventKind(kb)}
	switch in.Kind {
	case InputKey:
		if in.KeyCode, err = c.GetDword(); err != nil {
			return nil, err
		}
		down, err := c.GetByte()
		if err != nil {
			return nil, err
		}
		in.Down = down != 0
	case InputButton:
		if in.Button, err = c.GetDword(); err != nil {
			return nil, err
		}
		down, err := c.GetByte()
		if err != nil {
			return nil, err
		}
		in.Down = down != 0
	case InputMoveAbs, InputMoveRel:
		if in.Axis, err = c.GetDword(); err != nil {
			return nil, err
		}
		v, err := c.GetDword()
		if err != nil {
			return nil, err
		}
		in.Value = int32(v)
	default:
		return nil, fmt.Errorf("asyncqueue: read: unknown input event kind %d", in.Kind)
	}
	return in, nil
}

func decodeNetwork(c *codec.Codec) (*NetworkPacket, error) {
	id, err := c.GetQword()
	if err != nil {
		return nil, err
	}
	clientID, err := c.GetDword()
	if err != nil {
		return nil, err
	}
	data, err := decodeBytesPooled(c)
	if err != nil {
		return nil, err
	}
	return &NetworkPacket{PacketID: uint64(id), ClientID: int32(clientID), Data: data}, nil
}

func decodeChar(c *codec.Codec) (*CharEvent, error) {
	driverID, err := c.GetByte()
	if err != nil {
		return nil, err
	}
	data, err := decodeBytesPooled(c)
	if err != nil {
		return nil, err
	}
	return &CharEvent{DriverID: driverID, Data: data}, nil
}

// decodeUSBInto reads the remaining USBTransfer fields (everything after
// the correlation id, which Read already consumed to find the FIFO
// match) into the matched entry's existing USB payload.
func decodeUSBInto(c *codec.Codec, e *Event) error {
	status, err := c.GetDword()
	if err != nil {
		return err
	}
	actualLength, err := c.GetDword()
	if err != nil {
		return err
	}
	inByte, err := c.GetByte()
	if err != nil {
		return err
	}
	in := inByte != 0
	var data []byte
	if in {
		if data, err = decodeBytesPooled(c); err != nil {
			return err
		}
	}
	if e.USB == nil {
		e.USB = &USBTransfer{}
	}
	e.USB.Status = status
	e.USB.ActualLength = actualLength
	e.USB.In = in
	e.USB.Data = data
	return nil
}

func decodeUSBIsoInto(c *codec.Codec, e *Event) error {
	status, err := c.GetDword()
	if err != nil {
		return err
	}
	inByte, err := c.GetByte()
	if err != nil {
		return err
	}
	in := inByte != 0
	n, err := c.GetDword()
	if err != nil {
		return err
	}
	var packets [][]byte
	if in {
		packets = make([][]byte, n)
		for i := range packets {
			if packets[i], err = decodeBytesPooled(c); err != nil {
				return err
			}
		}
	}
	if e.USBIso == nil {
		e.USBIso = &USBIsoTransfer{}
	}
	e.USBIso.Status = status
	e.USBIso.In = in
	e.USBIso.Packets = packets
	return nil
}

func decodeBytesPooled(c *codec.Codec) ([]byte, error) {
	n, err := c.GetArrayLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := GetBuffer(int(n))
	if err := c.GetArrayData(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
