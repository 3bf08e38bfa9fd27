package asyncqueue

import (
	"fmt"

	"github.com/vmreplay/vmreplay/internal/codec"
	"github.com/vmreplay/vmreplay/internal/framer"
	"github.com/vmreplay/vmreplay/internal/wire"
)

// Save drains the queue to the log, one event per iteration: a tag
// (ASYNC, or ASYNC_OPT followed by the checkpoint-index byte when opt
// is not -1), the event kind, the kind-specific payload, then local
// dispatch — record mode both writes and runs (spec.md §4.3's `save`,
// grounded on replay_save_events in the original source).
func (q *Queue) Save(fr *framer.Framer, opt int) error {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		e := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if opt == -1 {
			if err := fr.PutEvent(wire.EventAsync); err != nil {
				return err
			}
		} else {
			if err := fr.PutEvent(wire.EventAsyncOpt); err != nil {
				return err
			}
			if err := fr.Codec().PutByte(byte(opt)); err != nil {
				return err
			}
		}
		if err := fr.Codec().PutByte(byte(e.Kind)); err != nil {
			return err
		}
		if err := encodePayload(fr.Codec(), e); err != nil {
			return err
		}

		q.run(e)
	}
}

func encodePayload(c *codec.Codec, e *Event) error {
	switch e.Kind {
	case KindBH, KindThread:
		return c.PutQword(int64(e.ID))

	case KindInput:
		return encodeInput(c, e.Input)

	case KindInputSync:
		return nil

	case KindNetwork:
		if err := c.PutQword(int64(e.Network.PacketID)); err != nil {
			return err
		}
		if err := c.PutDword(uint32(e.Network.ClientID)); err != nil {
			return err
		}
		return c.PutArray(e.Network.Data)

	case KindChar:
		if err := c.PutByte(e.Char.DriverID); err != nil {
			return err
		}
		return c.PutArray(e.Char.Data)

	case KindUSBCtrl, KindUSBData:
		x := e.USB
		if err := c.PutQword(int64(x.ID)); err != nil {
			return err
		}
		if err := c.PutDword(x.Status); err != nil {
			return err
		}
		if err := c.PutDword(x.ActualLength); err != nil {
			return err
		}
		if err := c.PutByte(boolByte(x.In)); err != nil {
			return err
		}
		if x.In {
			return c.PutArray(x.Data)
		}
		return nil

	case KindUSBIso:
		x := e.USBIso
		if err := c.PutQword(int64(x.ID)); err != nil {
			return err
		}
		if err := c.PutDword(x.Status); err != nil {
			return err
		}
		if err := c.PutByte(boolByte(x.In)); err != nil {
			return err
		}
		if err := c.PutDword(uint32(len(x.Packets))); err != nil {
			return err
		}
		if x.In {
			for _, p := range x.Packets {
				if err := c.PutArray(p); err != nil {
					return err
				}
			}
		}
		return nil

	default:
		return fmt.Errorf("asyncqueue: save: unknown async kind %d", e.Kind)
	}
}

func encodeInput(c *codec.Codec, in *InputEvent) error {
	if err := c.PutDword(uint32(in.Kind)); err != nil {
		return err
	}
	switch in.Kind {
	case InputKey:
		if err := c.PutDword(in.KeyCode); err != nil {
			return err
		}
		return c.PutByte(boolByte(in.Down))
	case InputButton:
		if err := c.PutDword(in.Button); err != nil {
			return err
		}
		return c.PutByte(boolByte(in.Down))
	case InputMoveAbs, InputMoveRel:
		if err := c.PutDword(in.Axis); err != nil {
			return err
		}
		return c.PutDword(uint32(in.Value))
	default:
		return fmt.Errorf("asyncqueue: save: unknown input event kind %d", in.Kind)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
