package replay

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the async-event dispatch latency histogram
// buckets in nanoseconds, covering from 1us to 10s with logarithmic
// spacing — the duration of each Dispatch call the async queue makes.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a replay
// session, the replay-domain counterpart of the teacher's I/O Metrics.
type Metrics struct {
	// Instruction counters.
	InstructionsRecorded atomic.Uint64
	InstructionsPlayed   atomic.Uint64

	// Async event counters, by outcome.
	AsyncDispatched atomic.Uint64 // events handed to the collaborator
	AsyncDeferred   atomic.Uint64 // Read found no FIFO match and stopped

	// Checkpoint counters.
	CheckpointsHit   atomic.Uint64 // RECORD checkpoint written, or PLAY checkpoint matched the log
	CheckpointsMissed atomic.Uint64 // PLAY checkpoint mismatched (recoverable)

	// Snapshot counters.
	SnapshotsTaken  atomic.Uint64
	SnapshotsLoaded atomic.Uint64

	// Queue depth statistics, updated only through RecordQueueDepth; the
	// session's observer does not call it, so they stay zero unless a
	// caller records depths itself.
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Async dispatch latency.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Error counters, by kind.
	TruncatedLogErrors atomic.Uint64
	OtherFatalErrors   atomic.Uint64

	// Session lifecycle.
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordInstruction records one instruction having been recorded or
// played back, per mode.
func (m *Metrics) RecordInstruction(recording bool) {
	if recording {
		m.InstructionsRecorded.Add(1)
	} else {
		m.InstructionsPlayed.Add(1)
	}
}

// RecordAsyncDispatch records a successful async event dispatch and its
// latency.
func (m *Metrics) RecordAsyncDispatch(latencyNs uint64) {
	m.AsyncDispatched.Add(1)
	m.recordLatency(latencyNs)
}

// RecordAsyncDeferred records a Read call that found no FIFO match yet.
func (m *Metrics) RecordAsyncDeferred() {
	m.AsyncDeferred.Add(1)
}

// RecordCheckpoint records a checkpoint result: hit for a RECORD-side
// checkpoint or a PLAY-side match, miss for a PLAY-side mismatch.
func (m *Metrics) RecordCheckpoint(hit bool) {
	if hit {
		m.CheckpointsHit.Add(1)
	} else {
		m.CheckpointsMissed.Add(1)
	}
}

// RecordSnapshot records a snapshot taken (RECORD) or loaded (PLAY).
func (m *Metrics) RecordSnapshot(taken bool) {
	if taken {
		m.SnapshotsTaken.Add(1)
	} else {
		m.SnapshotsLoaded.Add(1)
	}
}

// RecordQueueDepth records the async queue depth at enqueue time.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

// RecordError records a fatal replay error by kind.
func (m *Metrics) RecordError(kind Kind) {
	if kind == KindTruncatedLog {
		m.TruncatedLogErrors.Add(1)
	} else {
		m.OtherFatalErrors.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics, safe to read
// without racing the live counters.
type MetricsSnapshot struct {
	InstructionsRecorded uint64
	InstructionsPlayed   uint64

	AsyncDispatched uint64
	AsyncDeferred   uint64

	CheckpointsHit    uint64
	CheckpointsMissed uint64

	SnapshotsTaken  uint64
	SnapshotsLoaded uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64

	InstructionsPerSec float64

	TruncatedLogErrors uint64
	OtherFatalErrors   uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		InstructionsRecorded: m.InstructionsRecorded.Load(),
		InstructionsPlayed:   m.InstructionsPlayed.Load(),
		AsyncDispatched:      m.AsyncDispatched.Load(),
		AsyncDeferred:        m.AsyncDeferred.Load(),
		CheckpointsHit:       m.CheckpointsHit.Load(),
		CheckpointsMissed:    m.CheckpointsMissed.Load(),
		SnapshotsTaken:       m.SnapshotsTaken.Load(),
		SnapshotsLoaded:      m.SnapshotsLoaded.Load(),
		MaxQueueDepth:        m.MaxQueueDepth.Load(),
		TruncatedLogErrors:   m.TruncatedLogErrors.Load(),
		OtherFatalErrors:     m.OtherFatalErrors.Load(),
	}

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		totalInstructions := snap.InstructionsRecorded + snap.InstructionsPlayed
		snap.InstructionsPerSec = float64(totalInstructions) / uptimeSeconds
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// Observer receives metrics events as they happen, the same
// pluggable-sink shape as the teacher's Observer interface.
type Observer interface {
	OnInstruction(recording bool)
	OnAsyncDispatch(latencyNs uint64)
	OnAsyncDeferred()
	OnCheckpoint(hit bool)
	OnSnapshot(taken bool)
	OnError(kind Kind)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) OnInstruction(bool)       {}
func (NoOpObserver) OnAsyncDispatch(uint64)   {}
func (NoOpObserver) OnAsyncDeferred()         {}
func (NoOpObserver) OnCheckpoint(bool)        {}
func (NoOpObserver) OnSnapshot(bool)          {}
func (NoOpObserver) OnError(Kind)             {}

// MetricsObserver is an Observer that forwards every event into a
// Metrics instance, the default wired by Configure.
type MetricsObserver struct {
	m *Metrics
}

// NewMetricsObserver wraps m as an Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) OnInstruction(recording bool)     { o.m.RecordInstruction(recording) }
func (o *MetricsObserver) OnAsyncDispatch(latencyNs uint64) { o.m.RecordAsyncDispatch(latencyNs) }
func (o *MetricsObserver) OnAsyncDeferred()                 { o.m.RecordAsyncDeferred() }
func (o *MetricsObserver) OnCheckpoint(hit bool)            { o.m.RecordCheckpoint(hit) }
func (o *MetricsObserver) OnSnapshot(taken bool)            { o.m.RecordSnapshot(taken) }
func (o *MetricsObserver) OnError(kind Kind)                { o.m.RecordError(kind) }
