package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/adapter/repository/recording"
	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/usecase"
)

func main() {
	strategy := flag.String("strategy", "unordered", "Logger strategy: ordered or unordered")
	concurrency := flag.Int("c", 10, "Number of concurrent producers")
	duration := flag.Duration("d", 10*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 100000, "Events per second limit across all producers")
	capacity := flag.Int("capacity", 5000, "Unordered queue capacity")
	policy := flag.String("policy", "reject", "Backpressure policy: block, drop or reject")
	jitter := flag.Duration("jitter", 0, "Maximum timestamp jitter per event")
	dir := flag.String("dir", "", "Recordings directory (default: a temporary directory)")
	keep := flag.Bool("keep", false, "Keep the recording after the run")
	flag.Parse()

	if *dir == "" {
		tmp, err := os.MkdirTemp("", "recorder-load-*")
		if err != nil {
			log.Fatalf("failed to create temp dir: %v", err)
		}
		*dir = tmp
		if !*keep {
			defer os.RemoveAll(tmp)
		}
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := recording.NewManager(*dir, domain.MonotonicNow, quiet)
	if err != nil {
		log.Fatalf("failed to create manager: %v", err)
	}
	svc := usecase.NewRecordingService(manager, nil, usecase.StrategySettings{
		Name:          *strategy,
		QueueCapacity: *capacity,
	}, metrics.NewRecorderMetrics(nil), quiet)

	log.Printf("Starting load test: strategy=%s policy=%s", *strategy, *policy)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	eventLogger, err := svc.Begin(ctx, usecase.BeginRequest{Name: "load-test", Metadata: domain.NewFileMetadata("load-tester", *strategy)})
	if err != nil {
		log.Fatalf("failed to begin recording: %v", err)
	}
	emitter, err := usecase.NewEmitter(eventLogger, *policy, time.Millisecond, quiet)
	if err != nil {
		log.Fatalf("failed to create emitter: %v", err)
	}

	var wg sync.WaitGroup
	var acceptedCount, overflowCount, errorCount atomic.Int64
	limiter := rate.NewLimiter(rate.Limit(*rps), 1000) // Allow bursts up to 1000

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			kind := domain.EventKind(workerID % 23)
			var jitterNs int64
			if *jitter > 0 {
				jitterNs = int64(*jitter)
			}

			for seq := int64(0); ; seq++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				ts := domain.MonotonicNow()
				if jitterNs > 0 {
					ts -= (seq * 7919) % jitterNs
				}
				payload := fmt.Sprintf("%d;%d", workerID, seq)

				err := emitter.Emit(ctx, ts, kind, payload)
				switch {
				case err == nil:
					acceptedCount.Add(1)
				case errors.Is(err, domain.ErrBufferFull):
					overflowCount.Add(1)
				case ctx.Err() != nil:
					return
				default:
					errorCount.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()

	stats := svc.Stats()
	rec, err := svc.End(context.Background(), fmt.Sprintf("load test: %d producers for %s", *concurrency, *duration))
	if err != nil {
		log.Printf("Recording ended with errors: %v", err)
	}

	total := acceptedCount.Load() + overflowCount.Load() + errorCount.Load()
	log.Println("Load test finished.")
	log.Printf("Total Events: %d", total)
	log.Printf("Accepted: %d", acceptedCount.Load())
	log.Printf("Overflow: %d (dropped by policy: %d)", overflowCount.Load(), emitter.Dropped())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Stale: %d", stats.Stale)
	log.Printf("Actual EPS: %.2f", float64(acceptedCount.Load())/duration.Seconds())
	log.Printf("Recording: %s (%d events, %d bytes)", rec.Path, rec.Events, rec.Bytes)
}
