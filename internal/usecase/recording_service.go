package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/adapter/buffer"
	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/adapter/repository/recording"
	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/pkg/config"
)

// StrategySettings selects and tunes the buffering strategy of new loggers.
type StrategySettings struct {
	Name          string
	UpperWindow   time.Duration
	LowerWindow   time.Duration
	QueueCapacity int
	IdleSleep     time.Duration
}

// StrategySettingsFromConfig extracts the strategy settings from cfg.
func StrategySettingsFromConfig(cfg *config.Config) StrategySettings {
	return StrategySettings{
		Name:          cfg.LoggerStrategy,
		UpperWindow:   cfg.ReorderUpperWindow,
		LowerWindow:   cfg.ReorderLowerWindow,
		QueueCapacity: cfg.QueueCapacity,
		IdleSleep:     cfg.WriterIdleSleep,
	}
}

// NewStrategy builds a fresh buffering strategy.
func NewStrategy(s StrategySettings, m *metrics.RecorderMetrics, logger *slog.Logger) (domain.BufferStrategy, error) {
	switch s.Name {
	case config.StrategyOrdered, "":
		opts := []buffer.OrderedOption{buffer.WithOrderedMetrics(m), buffer.WithOrderedLogger(logger)}
		if s.UpperWindow > 0 {
			opts = append(opts, buffer.WithWindows(s.UpperWindow, s.LowerWindow))
		}
		return buffer.NewOrdered(opts...)
	case config.StrategyUnordered:
		opts := []buffer.UnorderedOption{buffer.WithUnorderedMetrics(m), buffer.WithUnorderedLogger(logger)}
		if s.QueueCapacity > 0 {
			opts = append(opts, buffer.WithQueueCapacity(s.QueueCapacity))
		}
		if s.IdleSleep > 0 {
			opts = append(opts, buffer.WithIdleSleep(s.IdleSleep))
		}
		return buffer.NewUnordered(opts...), nil
	default:
		return nil, fmt.Errorf("unknown logger strategy %q", s.Name)
	}
}

// BeginRequest describes a recording to start.
type BeginRequest struct {
	// Name of the recording file without extension. Empty uses the start
	// timestamp.
	Name     string
	Metadata domain.FileMetadata
}

// RecordingService drives the recording lifecycle: it opens a session through
// the manager, binds a fresh logger to it and, at the end, closes the session
// and indexes it in the catalog.
type RecordingService struct {
	manager  *recording.Manager
	catalog  domain.RecordingCatalog
	settings StrategySettings
	metrics  *metrics.RecorderMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	session *recording.Session
	active  *EventLogger
}

// NewRecordingService creates the service. catalog may be nil.
func NewRecordingService(manager *recording.Manager, catalog domain.RecordingCatalog, settings StrategySettings, m *metrics.RecorderMetrics, logger *slog.Logger) *RecordingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingService{
		manager:  manager,
		catalog:  catalog,
		settings: settings,
		metrics:  m,
		logger:   logger.With("component", "recording_service"),
	}
}

// Begin starts a new recording. Either both the session and its logger are
// running afterwards or nothing is left behind.
func (s *RecordingService) Begin(ctx context.Context, req BeginRequest) (*EventLogger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var opts []recording.SessionOption
	if req.Name != "" {
		opts = append(opts, recording.WithName(req.Name))
	}
	session, err := s.manager.StartNewSession(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	strategy, err := NewStrategy(s.settings, s.metrics, s.logger)
	if err != nil {
		s.abortLocked(session)
		return nil, err
	}
	eventLogger := NewEventLogger(strategy, s.metrics, s.logger)
	if err := eventLogger.Start(session, req.Metadata); err != nil {
		s.abortLocked(session)
		return nil, fmt.Errorf("failed to start logger: %w", err)
	}

	s.session = session
	s.active = eventLogger
	s.metrics.ObserveSession(metrics.OutcomeStarted)
	s.logger.Info("Recording started", "name", session.Name(), "recording_id", session.RecordingID(), "strategy", strategy.Name())
	return eventLogger, nil
}

// End stops the logger, closes the session (appending remark if non-empty)
// and indexes the recording. Every step is attempted; the first error is
// returned. Catalog failures are only logged.
func (s *RecordingService) End(ctx context.Context, remark string) (domain.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return domain.Recording{}, fmt.Errorf("end: %w", domain.ErrNotRunning)
	}
	session, eventLogger := s.session, s.active
	s.session, s.active = nil, nil

	var firstErr error
	if err := eventLogger.Stop(); err != nil {
		firstErr = err
	}

	var closeErr error
	if remark != "" {
		closeErr = session.CloseWithRemark(remark)
	} else {
		closeErr = session.Close()
	}
	if closeErr != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close session: %w", closeErr)
	}

	rec := domain.Recording{
		ID:             session.RecordingID(),
		Name:           session.Name(),
		Path:           session.Path(),
		Strategy:       eventLogger.Strategy(),
		StartTimestamp: session.StartTimestamp(),
		Events:         eventLogger.Events(),
		Bytes:          eventLogger.Bytes(),
		Remark:         remark,
		ClosedAt:       time.Now().UTC(),
	}

	if s.catalog != nil {
		if err := s.catalog.Index(ctx, rec); err != nil {
			s.logger.Error("Failed to index recording", "error", err, "recording_id", rec.ID)
		}
	}

	if firstErr != nil {
		s.metrics.ObserveSession(metrics.OutcomeFailed)
		s.logger.Error("Recording ended with errors", "error", firstErr, "name", rec.Name)
		return rec, firstErr
	}
	s.metrics.ObserveSession(metrics.OutcomeClosed)
	s.logger.Info("Recording ended", "name", rec.Name, "events", rec.Events, "bytes", rec.Bytes, "stale", eventLogger.Stale())
	return rec, nil
}

// Discard stops the logger and deletes every file of the current recording.
func (s *RecordingService) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return fmt.Errorf("discard: %w", domain.ErrNotRunning)
	}
	session, eventLogger := s.session, s.active
	s.session, s.active = nil, nil

	var errs []error
	if err := eventLogger.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := session.Abort(); err != nil {
		errs = append(errs, err)
	}
	s.metrics.ObserveSession(metrics.OutcomeAborted)
	s.logger.Info("Recording discarded", "name", session.Name())
	return errors.Join(errs...)
}

func (s *RecordingService) abortLocked(session *recording.Session) {
	if err := session.Abort(); err != nil {
		s.logger.Error("Failed to abort session", "error", err, "name", session.Name())
	}
	s.metrics.ObserveSession(metrics.OutcomeFailed)
}

// Sink returns the running logger, or nil when no recording is active.
func (s *RecordingService) Sink() domain.EventSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active
}

// Stats returns the running logger's statistics.
func (s *RecordingService) Stats() domain.LoggerStats {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return domain.LoggerStats{Session: NoSessionName, Strategy: s.settings.Name}
	}
	return active.Stats()
}

// Recordings lists finished recordings, from the catalog when configured and
// from the recordings directory otherwise.
func (s *RecordingService) Recordings(ctx context.Context, limit int) ([]domain.Recording, error) {
	if s.catalog != nil {
		return s.catalog.List(ctx, limit)
	}
	files, err := s.manager.List()
	if err != nil {
		return nil, err
	}
	recs := make([]domain.Recording, 0, len(files))
	for _, f := range files {
		recs = append(recs, domain.Recording{Name: f.Name, Path: f.Path, Bytes: f.Size, ClosedAt: f.ModTime.UTC()})
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// batchIndexer is implemented by catalogs that can upsert many recordings at once.
type batchIndexer interface {
	IndexBatch(ctx context.Context, recs []domain.Recording) error
}

// Reindex scans the recordings directory and indexes every finished
// recording in the catalog. The open recording, if any, is skipped.
func (s *RecordingService) Reindex(ctx context.Context) (int, error) {
	if s.catalog == nil {
		return 0, nil
	}
	files, err := s.manager.List()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	var openPath string
	if s.session != nil {
		openPath = s.session.Path()
	}
	s.mu.Unlock()

	recs := make([]domain.Recording, 0, len(files))
	for _, f := range files {
		if f.Path == openPath {
			continue
		}
		info, err := inspectFile(f.Path)
		if err != nil {
			s.logger.Warn("Skipping unreadable recording", "path", f.Path, "error", err)
			continue
		}
		if info.ID == "" {
			s.logger.Warn("Skipping recording without id", "path", f.Path)
			continue
		}
		recs = append(recs, domain.Recording{
			ID:       info.ID,
			Name:     f.Name,
			Path:     f.Path,
			Events:   info.Events,
			Bytes:    f.Size,
			Remark:   info.Remark,
			ClosedAt: f.ModTime.UTC(),
		})
	}

	if batch, ok := s.catalog.(batchIndexer); ok {
		if err := batch.IndexBatch(ctx, recs); err != nil {
			return 0, fmt.Errorf("failed to reindex recordings: %w", err)
		}
		return len(recs), nil
	}
	for _, rec := range recs {
		if err := s.catalog.Index(ctx, rec); err != nil {
			return 0, fmt.Errorf("failed to reindex recordings: %w", err)
		}
	}
	return len(recs), nil
}

func inspectFile(path string) (RecordingInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return RecordingInfo{}, err
	}
	defer f.Close()
	return InspectRecording(f)
}

// ReportStats publishes buffer gauges every interval until ctx is done. A
// non-positive interval falls back to one second.
func (s *RecordingService) ReportStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.Stats()
			s.metrics.SetBuffer(stats.FillLevel, stats.Cached)
			s.logger.Debug("Logger stats", "session", stats.Session, "events", stats.Events, "cached", stats.Cached, "fill", stats.FillLevel)
		}
	}
}
