package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// NoSessionName is reported by EventLogger.Name when no open session is bound.
const NoSessionName = "-"

type loggerState int

const (
	stateCreated loggerState = iota
	stateRunning
	stateStopped
)

// EventLogger binds a buffering strategy to one recording session. It
// converts producer timestamps to session-relative ones, drops events that
// predate the session and keeps running statistics. An EventLogger is single
// use: once stopped it cannot be started again.
type EventLogger struct {
	strategy domain.BufferStrategy
	metrics  *metrics.RecorderMetrics
	logger   *slog.Logger

	// mu is held shared by Record and exclusively by state transitions, so
	// Stop never races with an in-flight Record.
	mu      sync.RWMutex
	state   loggerState
	session domain.RecordingSession
	startTS int64

	events atomic.Int64
	bytes  atomic.Int64
	stale  atomic.Int64
}

// NewEventLogger creates a logger in the Created state.
func NewEventLogger(strategy domain.BufferStrategy, m *metrics.RecorderMetrics, logger *slog.Logger) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLogger{
		strategy: strategy,
		metrics:  m,
		logger:   logger.With("component", "event_logger", "strategy", strategy.Name()),
	}
}

// Start binds session, starts the strategy and writes the two header lines
// (file metadata, recording id). On failure the logger is left unbound.
func (l *EventLogger) Start(session domain.RecordingSession, meta domain.FileMetadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != stateCreated {
		return fmt.Errorf("start: %w", domain.ErrLoggerState)
	}
	if session == nil || !session.IsOpen() {
		return fmt.Errorf("start: %w", domain.ErrSessionClosed)
	}

	l.session = session
	l.startTS = session.StartTimestamp()
	l.events.Store(0)
	l.bytes.Store(0)
	l.stale.Store(0)

	if err := l.strategy.Start(session.Stream()); err != nil {
		l.session = nil
		return fmt.Errorf("start %s strategy: %w", l.strategy.Name(), err)
	}
	l.state = stateRunning

	headerErr := l.record(domain.KindFileMetadata, domain.BeginningTimestamp, meta.Payload())
	if headerErr == nil {
		headerErr = l.record(domain.KindRecordingID, domain.BeginningTimestamp, session.RecordingID())
	}
	if headerErr != nil {
		if err := l.strategy.Stop(); err != nil {
			l.logger.Error("failed to stop strategy after header failure", "error", err)
		}
		l.state = stateCreated
		l.session = nil
		return fmt.Errorf("write recording header: %w", headerErr)
	}

	l.logger.Info("logger started", "session", session.Name(), "start_ts", l.startTS)
	return nil
}

// Stop rejects further events and drains the strategy. The first I/O error
// seen by the strategy is returned.
func (l *EventLogger) Stop() error {
	l.mu.Lock()
	if l.state != stateRunning {
		l.mu.Unlock()
		return fmt.Errorf("stop: %w", domain.ErrLoggerState)
	}
	l.state = stateStopped
	l.mu.Unlock()

	if err := l.strategy.Stop(); err != nil {
		l.logger.Error("logger stopped with errors", "error", err, "events", l.events.Load())
		return fmt.Errorf("stop %s strategy: %w", l.strategy.Name(), err)
	}
	l.logger.Info("logger stopped",
		"events", l.events.Load(), "bytes", l.bytes.Load(), "stale", l.stale.Load())
	return nil
}

// Record logs one event. Events recorded outside Start/Stop fail with
// domain.ErrNotRunning and write nothing. Events older than the session start
// are dropped without error.
func (l *EventLogger) Record(kind domain.EventKind, timestamp int64, payload string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != stateRunning {
		l.metrics.ObserveEvent(metrics.StatusNotRunning, 0)
		return domain.ErrNotRunning
	}
	return l.record(kind, timestamp, payload)
}

// Emit implements domain.EventSink.
func (l *EventLogger) Emit(timestamp int64, kind domain.EventKind, payload string) error {
	return l.Record(kind, timestamp, payload)
}

// OpenAuxiliaryChannel implements domain.EventSink.
func (l *EventLogger) OpenAuxiliaryChannel(id string) (io.WriteCloser, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != stateRunning {
		return nil, domain.ErrNotRunning
	}
	return l.session.OpenAuxiliaryChannel(id)
}

func (l *EventLogger) record(kind domain.EventKind, timestamp int64, payload string) error {
	if strings.ContainsAny(payload, "\r\n") {
		l.metrics.ObserveEvent(metrics.StatusInvalid, 0)
		return fmt.Errorf("%s event: %w", kind, domain.ErrInvalidPayload)
	}

	relative := int64(0)
	if timestamp != domain.BeginningTimestamp {
		relative = timestamp - l.startTS
	}
	if relative < 0 {
		// producers replay cached readings at startup
		l.stale.Add(1)
		l.metrics.ObserveEvent(metrics.StatusStale, 0)
		l.logger.Debug("dropped event before session start", "kind", kind.String(), "relative_ns", relative)
		return nil
	}

	line := domain.FormatLine(relative, kind, payload)
	err := l.strategy.Record(domain.Event{Timestamp: relative, Kind: kind, Line: line})
	switch {
	case errors.Is(err, domain.ErrBufferFull):
		l.metrics.ObserveEvent(metrics.StatusOverflow, 0)
		return err
	case errors.Is(err, domain.ErrNotRunning):
		l.metrics.ObserveEvent(metrics.StatusNotRunning, 0)
		return err
	}

	// the event is buffered even if the commit it triggered failed
	l.events.Add(1)
	l.bytes.Add(int64(len(line)))
	if err != nil {
		l.metrics.ObserveEvent(metrics.StatusError, len(line))
		return err
	}
	l.metrics.ObserveEvent(metrics.StatusAccepted, len(line))
	return nil
}

// Events returns the number of accepted events.
func (l *EventLogger) Events() int64 { return l.events.Load() }

// Bytes returns the number of bytes handed to the strategy.
func (l *EventLogger) Bytes() int64 { return l.bytes.Load() }

// Stale returns the number of events dropped for predating the session.
func (l *EventLogger) Stale() int64 { return l.stale.Load() }

// Cached returns the number of buffered, uncommitted events.
func (l *EventLogger) Cached() int64 { return l.strategy.Cached() }

// FillLevel returns the strategy's normalized buffer pressure.
func (l *EventLogger) FillLevel() float64 { return l.strategy.FillLevel() }

// Strategy returns the strategy name.
func (l *EventLogger) Strategy() string { return l.strategy.Name() }

// Running reports whether the logger accepts events.
func (l *EventLogger) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == stateRunning
}

// Name returns the bound session's name, or NoSessionName.
func (l *EventLogger) Name() string {
	l.mu.RLock()
	session := l.session
	l.mu.RUnlock()
	if session != nil && session.IsOpen() {
		return session.Name()
	}
	return NoSessionName
}

// Stats returns a snapshot of all statistics.
func (l *EventLogger) Stats() domain.LoggerStats {
	return domain.LoggerStats{
		Session:   l.Name(),
		Strategy:  l.Strategy(),
		Running:   l.Running(),
		Events:    l.Events(),
		Bytes:     l.Bytes(),
		Stale:     l.Stale(),
		Cached:    l.Cached(),
		FillLevel: l.FillLevel(),
	}
}

var _ domain.EventSink = (*EventLogger)(nil)
