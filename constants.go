package replay

import "github.com/vmreplay/vmreplay/internal/wire"

// Re-exported wire constants, so callers configuring a Session never
// need to import an internal package directly.
const (
	DefaultSuffix = wire.DefaultSuffix
	DefaultICount = wire.DefaultICount
	DefaultPeriod = wire.DefaultPeriod

	ClockRDTSC   = wire.ClockRDTSC
	ClockHost    = wire.ClockHost
	ClockVirtual = wire.ClockVirtual

	ReplayVersion = wire.ReplayVersion
)

// Mode re-exports the replay session mode.
type Mode = wire.Mode

const (
	ModeNone   = wire.ModeNone
	ModeRecord = wire.ModeRecord
	ModePlay   = wire.ModePlay
)

// Submode re-exports normal-vs-reverse PLAY.
type Submode = wire.Submode

const (
	SubmodeNormal  = wire.SubmodeNormal
	SubmodeReverse = wire.SubmodeReverse
)
