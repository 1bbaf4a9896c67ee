package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Keep for postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/sensor-recorder/internal/adapter/api"
	"github.com/V4T54L/sensor-recorder/internal/adapter/api/handler"
	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/adapter/producer"
	"github.com/V4T54L/sensor-recorder/internal/adapter/repository/postgres"
	"github.com/V4T54L/sensor-recorder/internal/adapter/repository/recording"
	redisrepo "github.com/V4T54L/sensor-recorder/internal/adapter/repository/redis"
	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/pkg/config"
	"github.com/V4T54L/sensor-recorder/internal/pkg/logger"
	"github.com/V4T54L/sensor-recorder/internal/usecase"
)

func main() {
	name := flag.String("name", "", "Recording name (default: start timestamp)")
	duration := flag.Duration("duration", 0, "Stop after this duration (0 waits for SIGINT/SIGTERM)")
	remark := flag.String("remark", "", "Remark appended when the recording ends")
	kinds := flag.String("kinds", "accelerometer,gyroscope,magnetic_field", "Comma separated sensor kinds to simulate")
	rateHz := flag.Float64("rate", 200, "Events per second per sensor")
	jitter := flag.Duration("jitter", 50*time.Millisecond, "Maximum timestamp jitter per event")
	micBytes := flag.Int("mic-bytes", 0, "Raw bytes per event written to the \"mic\" auxiliary channel (0 disables)")
	reindex := flag.Bool("reindex", false, "Index existing recordings in the catalog before recording")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.NewRecorderMetrics(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// --- Catalog ---
	catalog, closeCatalog, err := openCatalog(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open recording catalog", "error", err)
		os.Exit(1)
	}
	defer closeCatalog()

	// --- Recording Service ---
	manager, err := recording.NewManager(cfg.RecordingsDir, domain.MonotonicNow, log)
	if err != nil {
		log.Error("failed to initialize recording manager", "error", err)
		os.Exit(1)
	}
	svc := usecase.NewRecordingService(manager, catalog, usecase.StrategySettingsFromConfig(cfg), m, log)

	if *reindex {
		n, err := svc.Reindex(ctx)
		if err != nil {
			log.Error("failed to reindex recordings", "error", err)
		} else {
			log.Info("reindexed recordings", "count", n)
		}
	}

	// --- Admin and Metrics Server ---
	// No WriteTimeout: /status/stream stays open for the whole session.
	broker := handler.NewStatsBroker(ctx, svc, cfg.StatsInterval, log)
	adminServer := &http.Server{
		Addr:        cfg.AdminServerAddr,
		Handler:     api.NewAdminRouter(svc, prometheus.DefaultGatherer, broker, log),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 15 * time.Second,
	}
	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Recording ---
	eventLogger, err := svc.Begin(ctx, usecase.BeginRequest{
		Name:     *name,
		Metadata: domain.NewFileMetadata(cfg.RecordingPerson, cfg.RecordingComment),
	})
	if err != nil {
		log.Error("failed to begin recording", "error", err)
		os.Exit(1)
	}

	emitter, err := usecase.NewEmitter(eventLogger, cfg.BackpressurePolicy, cfg.WriterIdleSleep, log)
	if err != nil {
		log.Error("failed to create emitter", "error", err)
		_ = svc.Discard(context.Background())
		os.Exit(1)
	}

	producers, err := buildProducers(*kinds, *rateHz, *jitter, *micBytes, emitter, log)
	if err != nil {
		log.Error("invalid producer configuration", "error", err)
		_ = svc.Discard(context.Background())
		os.Exit(1)
	}

	go svc.ReportStats(ctx, cfg.StatsInterval)

	var wg sync.WaitGroup
	for _, p := range producers {
		wg.Add(1)
		go func(p *producer.Synthetic) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				log.Error("producer failed", "error", err)
			}
		}(p)
	}

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("stopping recording...")
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	rec, err := svc.End(shutdownCtx, *remark)
	if err != nil {
		log.Error("recording ended with errors", "error", err)
	}
	log.Info("recording finished", "path", rec.Path, "events", rec.Events, "bytes", rec.Bytes, "dropped", emitter.Dropped())

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	log.Info("recorder shut down gracefully")
}

func buildProducers(kinds string, rateHz float64, jitter time.Duration, micBytes int, sink producer.Sink, log *slog.Logger) ([]*producer.Synthetic, error) {
	var producers []*producer.Synthetic
	for i, name := range strings.Split(kinds, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		kind, err := domain.ParseEventKind(name)
		if err != nil {
			return nil, err
		}
		pc := producer.Config{
			Kind:   kind,
			Rate:   rateHz,
			Burst:  max(1, int(rateHz/10)),
			Jitter: jitter,
			Seed:   uint64(i + 1),
		}
		// the first producer also feeds the raw microphone channel
		if i == 0 && micBytes > 0 {
			pc.AuxChannel = "mic"
			pc.AuxBytes = micBytes
		}
		p, err := producer.New(pc, sink, log)
		if err != nil {
			return nil, err
		}
		producers = append(producers, p)
	}
	if len(producers) == 0 {
		return nil, fmt.Errorf("no sensor kinds given")
	}
	return producers, nil
}

func openCatalog(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.RecordingCatalog, func(), error) {
	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo := postgres.NewCatalogRepository(db, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to create catalog schema: %w", err)
		}
		log.Info("connected to postgres catalog")
		return repo, func() { db.Close() }, nil
	case config.CatalogRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("connected to redis catalog")
		return redisrepo.NewCatalogRepository(client, log), func() { client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
