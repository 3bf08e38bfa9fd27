package replay

import "testing"

func TestMetricsRecordInstruction(t *testing.T) {
	m := NewMetrics()
	m.RecordInstruction(true)
	m.RecordInstruction(true)
	m.RecordInstruction(false)

	snap := m.Snapshot()
	if snap.InstructionsRecorded != 2 {
		t.Errorf("expected 2 recorded instructions, got %d", snap.InstructionsRecorded)
	}
	if snap.InstructionsPlayed != 1 {
		t.Errorf("expected 1 played instruction, got %d", snap.InstructionsPlayed)
	}
}

func TestMetricsRecordCheckpoint(t *testing.T) {
	m := NewMetrics()
	m.RecordCheckpoint(true)
	m.RecordCheckpoint(true)
	m.RecordCheckpoint(false)

	snap := m.Snapshot()
	if snap.CheckpointsHit != 2 {
		t.Errorf("expected 2 checkpoint hits, got %d", snap.CheckpointsHit)
	}
	if snap.CheckpointsMissed != 1 {
		t.Errorf("expected 1 checkpoint miss, got %d", snap.CheckpointsMissed)
	}
}

func TestMetricsQueueDepthTracksMax(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(3)
	m.RecordQueueDepth(7)
	m.RecordQueueDepth(2)

	snap := m.Snapshot()
	if snap.MaxQueueDepth != 7 {
		t.Errorf("expected max queue depth 7, got %d", snap.MaxQueueDepth)
	}
	expectedAvg := float64(3+7+2) / 3.0
	if snap.AvgQueueDepth != expectedAvg {
		t.Errorf("expected avg queue depth %v, got %v", expectedAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics()
	m.RecordAsyncDispatch(500)       // falls in every bucket
	m.RecordAsyncDispatch(5_000_000) // falls in buckets >= 10ms only

	snap := m.Snapshot()
	if snap.AsyncDispatched != 2 {
		t.Errorf("expected 2 dispatches recorded, got %d", snap.AsyncDispatched)
	}
	if snap.LatencyHistogram[0] != 1 {
		t.Errorf("expected bucket[0] (1us) to count only the 500ns sample, got %d", snap.LatencyHistogram[0])
	}
	if snap.LatencyHistogram[numLatencyBuckets-1] != 2 {
		t.Errorf("expected the top bucket to count both samples, got %d", snap.LatencyHistogram[numLatencyBuckets-1])
	}
}

func TestMetricsObserverForwardsEvents(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.OnInstruction(true)
	obs.OnCheckpoint(false)
	obs.OnSnapshot(true)
	obs.OnError(KindTruncatedLog)

	snap := m.Snapshot()
	if snap.InstructionsRecorded != 1 {
		t.Errorf("expected observer to forward OnInstruction into Metrics")
	}
	if snap.CheckpointsMissed != 1 {
		t.Errorf("expected observer to forward OnCheckpoint into Metrics")
	}
	if snap.SnapshotsTaken != 1 {
		t.Errorf("expected observer to forward OnSnapshot into Metrics")
	}
	if snap.TruncatedLogErrors != 1 {
		t.Errorf("expected observer to forward OnError into Metrics")
	}
}

func TestNoOpObserverDiscardsEverything(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.OnInstruction(true)
	obs.OnAsyncDispatch(100)
	obs.OnCheckpoint(true)
	obs.OnSnapshot(false)
	obs.OnError(KindModeConflict)
	// nothing to assert: NoOpObserver must simply not panic
}
