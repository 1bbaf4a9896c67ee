package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderMetrics(t *testing.T) {
	m := NewRecorderMetrics(prometheus.NewRegistry())

	m.ObserveEvent(StatusAccepted, 10)
	m.ObserveEvent(StatusAccepted, 5)
	m.ObserveEvent(StatusStale, 0)
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues(StatusAccepted)); got != 2 {
		t.Errorf("expected 2 accepted events, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal); got != 15 {
		t.Errorf("expected 15 bytes, got %v", got)
	}

	m.ObserveSession(OutcomeStarted)
	if got := testutil.ToFloat64(m.SessionActive); got != 1 {
		t.Errorf("expected active session, got %v", got)
	}
	m.ObserveSession(OutcomeClosed)
	if got := testutil.ToFloat64(m.SessionActive); got != 0 {
		t.Errorf("expected no active session, got %v", got)
	}

	m.SetBuffer(0.25, 42)
	if got := testutil.ToFloat64(m.BufferedEntries); got != 42 {
		t.Errorf("expected 42 buffered entries, got %v", got)
	}

	m.ObserveCommit("ordered", 8)
	if n := testutil.CollectAndCount(m.CommitBatchSize); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestRecorderMetrics_NilSafe(t *testing.T) {
	var m *RecorderMetrics
	m.ObserveEvent(StatusAccepted, 1)
	m.ObserveCommit("ordered", 1)
	m.ObserveReorderViolation()
	m.ObserveWriteError("ordered")
	m.ObserveSession(OutcomeStarted)
	m.SetBuffer(1, 1)
}
