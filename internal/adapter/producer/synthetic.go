package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// Sink is what a producer emits into, typically a usecase.Emitter.
type Sink interface {
	Emit(ctx context.Context, timestamp int64, kind domain.EventKind, payload string) error
	OpenAuxiliaryChannel(id string) (io.WriteCloser, error)
}

// Config describes one synthetic producer.
type Config struct {
	Kind domain.EventKind
	// Rate in events per second.
	Rate  float64
	Burst int
	// Jitter shifts each timestamp back by a random amount up to Jitter, so
	// events arrive out of order.
	Jitter time.Duration
	Clock  domain.Clock
	// AuxChannel, if set, receives AuxBytes raw bytes per event.
	AuxChannel string
	AuxBytes   int
	Seed       uint64
}

// Synthetic generates rate-limited sensor readings.
type Synthetic struct {
	cfg     Config
	sink    Sink
	limiter *rate.Limiter
	rnd     *rand.Rand
	logger  *slog.Logger

	emitted atomic.Int64
	failed  atomic.Int64
}

// New creates a producer. Rate must be positive.
func New(cfg Config, sink Sink, logger *slog.Logger) (*Synthetic, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("producer rate must be positive, got %v", cfg.Rate)
	}
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("unknown event kind %d", cfg.Kind)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.MonotonicNow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthetic{
		cfg:     cfg,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		rnd:     rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.Kind)+1)),
		logger:  logger.With("component", "producer", "kind", cfg.Kind.String()),
	}, nil
}

// Run emits events until ctx is done or the sink stops accepting events.
func (s *Synthetic) Run(ctx context.Context) error {
	var aux io.WriteCloser
	if s.cfg.AuxChannel != "" {
		w, err := s.sink.OpenAuxiliaryChannel(s.cfg.AuxChannel)
		if err != nil {
			return fmt.Errorf("failed to open auxiliary channel %q: %w", s.cfg.AuxChannel, err)
		}
		aux = w
		defer func() {
			if err := aux.Close(); err != nil {
				s.logger.Error("Failed to close auxiliary channel", "error", err)
			}
		}()
	}
	auxBuf := make([]byte, s.cfg.AuxBytes)

	s.logger.Info("Producer started", "rate", s.cfg.Rate, "jitter", s.cfg.Jitter)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			// ctx cancelled or its deadline is shorter than the next token
			s.logger.Info("Producer stopped", "emitted", s.emitted.Load(), "failed", s.failed.Load())
			return nil
		}

		ts := s.cfg.Clock()
		if s.cfg.Jitter > 0 {
			ts -= s.rnd.Int64N(int64(s.cfg.Jitter))
		}
		err := s.sink.Emit(ctx, ts, s.cfg.Kind, s.payload())
		switch {
		case err == nil:
			s.emitted.Add(1)
		case errors.Is(err, domain.ErrNotRunning):
			s.logger.Info("Sink is no longer running", "emitted", s.emitted.Load())
			return nil
		case errors.Is(err, domain.ErrBufferFull), ctx.Err() != nil:
			s.failed.Add(1)
			continue
		default:
			s.failed.Add(1)
			return fmt.Errorf("emit %s: %w", s.cfg.Kind, err)
		}

		if aux != nil && len(auxBuf) > 0 {
			for i := range auxBuf {
				auxBuf[i] = byte(s.rnd.UintN(256))
			}
			if _, err := aux.Write(auxBuf); err != nil {
				return fmt.Errorf("write auxiliary channel %q: %w", s.cfg.AuxChannel, err)
			}
		}
	}
}

// payload renders a plausible reading for the kind.
func (s *Synthetic) payload() string {
	values := 3
	switch s.cfg.Kind {
	case domain.KindPressure, domain.KindLight, domain.KindRelativeHumidity,
		domain.KindAmbientTemperature, domain.KindHeartRate, domain.KindStepDetector, domain.KindHeadingChange:
		values = 1
	case domain.KindRotationVector, domain.KindGameRotationVector:
		values = 4
	case domain.KindRotationMatrix:
		values = 9
	}
	parts := make([]string, values)
	for i := range parts {
		parts[i] = strconv.FormatFloat(s.rnd.NormFloat64(), 'f', 6, 64)
	}
	return strings.Join(parts, domain.FieldSeparator)
}

// Emitted returns the number of accepted events.
func (s *Synthetic) Emitted() int64 { return s.emitted.Load() }

// Failed returns the number of events the sink did not accept.
func (s *Synthetic) Failed() int64 { return s.failed.Load() }
