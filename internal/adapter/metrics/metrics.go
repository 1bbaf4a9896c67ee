package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event statuses used as label values of EventsTotal.
const (
	StatusAccepted   = "accepted"
	StatusStale      = "stale"
	StatusOverflow   = "overflow"
	StatusNotRunning = "not_running"
	StatusInvalid    = "invalid"
	StatusError      = "error"
)

// Session outcomes used as label values of SessionsTotal.
const (
	OutcomeStarted = "started"
	OutcomeClosed  = "closed"
	OutcomeAborted = "aborted"
	OutcomeFailed  = "failed"
)

// RecorderMetrics holds all Prometheus metrics for the recorder.
type RecorderMetrics struct {
	EventsTotal       *prometheus.CounterVec
	BytesTotal        prometheus.Counter
	BufferFill        prometheus.Gauge
	BufferedEntries   prometheus.Gauge
	CommitBatchSize   *prometheus.HistogramVec
	ReorderViolations prometheus.Counter
	WriteErrors       *prometheus.CounterVec
	SessionsTotal     *prometheus.CounterVec
	SessionActive     prometheus.Gauge
}

// NewRecorderMetrics registers the recorder metrics with reg. A nil reg uses
// the default registerer.
func NewRecorderMetrics(reg prometheus.Registerer) *RecorderMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &RecorderMetrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_recorder",
			Subsystem: "logger",
			Name:      "events_total",
			Help:      "Total number of recorded events by status.",
		}, []string{"status"}), // status: accepted, stale, overflow, not_running, invalid, error
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_recorder",
			Subsystem: "logger",
			Name:      "bytes_total",
			Help:      "Total number of bytes handed to the buffering strategy.",
		}),
		BufferFill: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensor_recorder",
			Subsystem: "buffer",
			Name:      "fill_level",
			Help:      "Normalized buffer pressure of the active strategy (0..1).",
		}),
		BufferedEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensor_recorder",
			Subsystem: "buffer",
			Name:      "entries",
			Help:      "Events buffered and not yet committed to the recording.",
		}),
		CommitBatchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sensor_recorder",
			Subsystem: "buffer",
			Name:      "commit_batch_size",
			Help:      "Number of events written per commit.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"strategy"}),
		ReorderViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensor_recorder",
			Subsystem: "buffer",
			Name:      "reorder_violations_total",
			Help:      "Events committed with a timestamp older than a previous commit.",
		}),
		WriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_recorder",
			Subsystem: "buffer",
			Name:      "write_errors_total",
			Help:      "Failed writes to the recording stream.",
		}, []string{"strategy"}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_recorder",
			Subsystem: "session",
			Name:      "total",
			Help:      "Recording sessions by outcome.",
		}, []string{"outcome"}), // outcome: started, closed, aborted, failed
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensor_recorder",
			Subsystem: "session",
			Name:      "active",
			Help:      "1 while a recording session is open.",
		}),
	}
}

// ObserveEvent counts one event with the given status.
func (m *RecorderMetrics) ObserveEvent(status string, bytes int) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.BytesTotal.Add(float64(bytes))
	}
}

// ObserveCommit records the size of one committed batch.
func (m *RecorderMetrics) ObserveCommit(strategy string, entries int) {
	if m == nil || entries == 0 {
		return
	}
	m.CommitBatchSize.WithLabelValues(strategy).Observe(float64(entries))
}

// ObserveReorderViolation counts one out-of-order commit.
func (m *RecorderMetrics) ObserveReorderViolation() {
	if m == nil {
		return
	}
	m.ReorderViolations.Inc()
}

// ObserveWriteError counts one failed write.
func (m *RecorderMetrics) ObserveWriteError(strategy string) {
	if m == nil {
		return
	}
	m.WriteErrors.WithLabelValues(strategy).Inc()
}

// ObserveSession counts a session lifecycle transition.
func (m *RecorderMetrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeStarted:
		m.SessionActive.Set(1)
	case OutcomeClosed, OutcomeAborted, OutcomeFailed:
		m.SessionActive.Set(0)
	}
}

// SetBuffer publishes the current buffer gauges.
func (m *RecorderMetrics) SetBuffer(fill float64, entries int64) {
	if m == nil {
		return
	}
	m.BufferFill.Set(fill)
	m.BufferedEntries.Set(float64(entries))
}
