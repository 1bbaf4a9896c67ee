package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/adapter/repository/recording"
	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/domain/mocks"
)

func newTestService(t *testing.T, settings StrategySettings, catalog domain.RecordingCatalog) (*RecordingService, *recording.Manager, *metrics.RecorderMetrics) {
	t.Helper()
	clock := func() int64 { return 1000 }
	manager, err := recording.NewManager(t.TempDir(), clock, discardLogger())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	m := metrics.NewRecorderMetrics(prometheus.NewRegistry())
	return NewRecordingService(manager, catalog, settings, m, discardLogger()), manager, m
}

func TestRecordingService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Begin Record End", func(t *testing.T) {
		catalog := &mocks.MockCatalog{}
		svc, manager, m := newTestService(t, StrategySettings{Name: "ordered"}, catalog)

		el, err := svc.Begin(ctx, BeginRequest{Name: "walk", Metadata: testMetadata()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if svc.Sink() == nil {
			t.Fatal("expected an active sink")
		}
		if err := el.Emit(1010, domain.KindGyroscope, "y"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := el.Emit(1000, domain.KindAccelerometer, "x"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := testutil.ToFloat64(m.SessionActive); got != 1 {
			t.Errorf("expected active gauge 1, got %v", got)
		}

		rec, err := svc.End(ctx, "a\nb")
		if err != nil {
			t.Fatalf("expected no error on end, got %v", err)
		}
		if rec.Events != 4 {
			t.Errorf("expected 4 events, got %d", rec.Events)
		}
		if rec.Strategy != "ordered" {
			t.Errorf("expected strategy ordered, got %q", rec.Strategy)
		}
		if len(catalog.Indexed) != 1 || catalog.Indexed[0].ID != rec.ID {
			t.Errorf("expected recording to be indexed, got %+v", catalog.Indexed)
		}
		if svc.Sink() != nil {
			t.Error("expected no sink after end")
		}
		if got := testutil.ToFloat64(m.SessionActive); got != 0 {
			t.Errorf("expected active gauge 0, got %v", got)
		}

		data, err := os.ReadFile(filepath.Join(manager.Root(), "walk.csv"))
		if err != nil {
			t.Fatalf("failed to read recording: %v", err)
		}
		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		want := []string{"0;0;x", "10;3;y", recording.RemarkBanner, "# a", "# b"}
		if len(lines) != 7 || strings.Join(lines[2:], "|") != strings.Join(want, "|") {
			t.Errorf("unexpected recording contents:\n%s", data)
		}
	})

	t.Run("Second Begin Fails", func(t *testing.T) {
		svc, _, _ := newTestService(t, StrategySettings{Name: "unordered"}, nil)
		if _, err := svc.Begin(ctx, BeginRequest{Name: "one", Metadata: testMetadata()}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer svc.End(ctx, "")

		if _, err := svc.Begin(ctx, BeginRequest{Name: "two", Metadata: testMetadata()}); !errors.Is(err, domain.ErrSessionActive) {
			t.Errorf("expected ErrSessionActive, got %v", err)
		}
	})

	t.Run("Begin Is All Or Nothing", func(t *testing.T) {
		svc, manager, _ := newTestService(t, StrategySettings{Name: "bogus"}, nil)
		if _, err := svc.Begin(ctx, BeginRequest{Name: "broken", Metadata: testMetadata()}); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if _, err := os.Stat(filepath.Join(manager.Root(), "broken.csv")); !os.IsNotExist(err) {
			t.Errorf("expected aborted recording to be removed, stat err %v", err)
		}
		if svc.Sink() != nil {
			t.Error("expected no sink after failed begin")
		}
	})

	t.Run("Invalid Metadata Aborts Session", func(t *testing.T) {
		svc, manager, _ := newTestService(t, StrategySettings{Name: "ordered"}, nil)
		meta := testMetadata()
		meta.Comment = "line\nbreak"
		if _, err := svc.Begin(ctx, BeginRequest{Name: "meta", Metadata: meta}); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(manager.Root(), "meta.csv")); !os.IsNotExist(err) {
			t.Errorf("expected aborted recording to be removed, stat err %v", err)
		}
		if _, err := svc.Begin(ctx, BeginRequest{Name: "meta", Metadata: testMetadata()}); err != nil {
			t.Fatalf("expected a new session to start, got %v", err)
		}
		_, _ = svc.End(ctx, "")
	})

	t.Run("Discard", func(t *testing.T) {
		svc, manager, _ := newTestService(t, StrategySettings{Name: "ordered"}, nil)
		el, err := svc.Begin(ctx, BeginRequest{Name: "scrap", Metadata: testMetadata()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		aux, err := el.OpenAuxiliaryChannel("mic")
		if err != nil {
			t.Fatalf("expected no error opening channel, got %v", err)
		}
		_, _ = aux.Write([]byte{1, 2, 3})

		if err := svc.Discard(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		files, err := manager.List()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(files) != 0 {
			t.Errorf("expected no recordings, got %v", files)
		}
		if _, err := os.Stat(filepath.Join(manager.Root(), "scrap.csv.mic")); !os.IsNotExist(err) {
			t.Errorf("expected auxiliary file to be removed, stat err %v", err)
		}
	})

	t.Run("End Without Session", func(t *testing.T) {
		svc, _, _ := newTestService(t, StrategySettings{Name: "ordered"}, nil)
		if _, err := svc.End(ctx, ""); !errors.Is(err, domain.ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got %v", err)
		}
		if err := svc.Discard(ctx); !errors.Is(err, domain.ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got %v", err)
		}
	})

	t.Run("Catalog Failure Does Not Fail End", func(t *testing.T) {
		catalog := &mocks.MockCatalog{IndexErr: errors.New("catalog down")}
		svc, _, _ := newTestService(t, StrategySettings{Name: "ordered"}, catalog)
		if _, err := svc.Begin(ctx, BeginRequest{Name: "cat", Metadata: testMetadata()}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := svc.End(ctx, ""); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestRecordingService_Recordings(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, StrategySettings{Name: "ordered"}, nil)

	for _, name := range []string{"first", "second"} {
		if _, err := svc.Begin(ctx, BeginRequest{Name: name, Metadata: testMetadata()}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := svc.End(ctx, ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	recs, err := svc.Recordings(ctx, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "first" || recs[1].Name != "second" {
		t.Errorf("unexpected recordings %+v", recs)
	}

	recs, err = svc.Recordings(ctx, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected limit to apply, got %d", len(recs))
	}

	stats := svc.Stats()
	if stats.Session != NoSessionName || stats.Running {
		t.Errorf("expected idle stats, got %+v", stats)
	}
}

func TestRecordingService_Reindex(t *testing.T) {
	ctx := context.Background()
	catalog := &mocks.MockCatalog{}
	svc, _, _ := newTestService(t, StrategySettings{Name: "ordered"}, catalog)

	ids := map[string]bool{}
	for _, name := range []string{"first", "second"} {
		if _, err := svc.Begin(ctx, BeginRequest{Name: name, Metadata: testMetadata()}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rec, err := svc.End(ctx, "note")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		ids[rec.ID] = true
	}
	if _, err := svc.Begin(ctx, BeginRequest{Name: "open", Metadata: testMetadata()}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer svc.End(ctx, "")

	catalog.Indexed = nil
	n, err := svc.Reindex(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 || len(catalog.Indexed) != 2 {
		t.Fatalf("expected 2 reindexed recordings, got n=%d indexed=%d", n, len(catalog.Indexed))
	}
	for _, rec := range catalog.Indexed {
		if !ids[rec.ID] {
			t.Errorf("unexpected recording id %q", rec.ID)
		}
		if rec.Remark != "note" || rec.Events != 2 {
			t.Errorf("unexpected reindexed recording %+v", rec)
		}
	}
}

func TestRecordingService_ReportStats(t *testing.T) {
	t.Run("Non Positive Interval Falls Back", func(t *testing.T) {
		svc, _, _ := newTestService(t, StrategySettings{Name: "ordered"}, nil)
		for _, interval := range []time.Duration{0, -time.Second} {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			svc.ReportStats(ctx, interval)
			cancel()
		}
	})

	t.Run("Publishes Buffer Gauges", func(t *testing.T) {
		svc, _, m := newTestService(t, StrategySettings{Name: "ordered"}, nil)
		el, err := svc.Begin(context.Background(), BeginRequest{Name: "gauges", Metadata: testMetadata()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer svc.End(context.Background(), "")
		if err := el.Emit(1000, domain.KindAccelerometer, "x"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		svc.ReportStats(ctx, 5*time.Millisecond)

		if got := testutil.ToFloat64(m.BufferedEntries); got < 1 {
			t.Errorf("expected buffered entries gauge >= 1, got %v", got)
		}
	})
}
