package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/pkg/config"
)

const defaultRetryInterval = 5 * time.Millisecond

// Emitter applies a backpressure policy on top of an EventSink when the sink
// reports a full buffer:
//   - block retries every retry interval until the event is accepted or ctx ends
//   - drop counts the event and reports success
//   - reject returns the capacity error to the producer
type Emitter struct {
	sink   domain.EventSink
	policy string
	retry  time.Duration
	logger *slog.Logger

	dropped atomic.Int64
}

// NewEmitter wraps sink with policy. A non-positive retry uses 5ms.
func NewEmitter(sink domain.EventSink, policy string, retry time.Duration, logger *slog.Logger) (*Emitter, error) {
	switch policy {
	case config.PolicyBlock, config.PolicyDrop, config.PolicyReject:
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", policy)
	}
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		sink:   sink,
		policy: policy,
		retry:  retry,
		logger: logger.With("component", "emitter", "policy", policy),
	}, nil
}

// Emit forwards one event to the sink.
func (e *Emitter) Emit(ctx context.Context, timestamp int64, kind domain.EventKind, payload string) error {
	for {
		err := e.sink.Emit(timestamp, kind, payload)
		if !errors.Is(err, domain.ErrBufferFull) {
			return err
		}

		switch e.policy {
		case config.PolicyBlock:
			select {
			case <-ctx.Done():
				return fmt.Errorf("waiting for buffer capacity: %w", ctx.Err())
			case <-time.After(e.retry):
			}
		case config.PolicyDrop:
			if n := e.dropped.Add(1); n == 1 || n%1000 == 0 {
				e.logger.Warn("dropping events on full buffer", "dropped", n, "kind", kind.String())
			}
			return nil
		default:
			return err
		}
	}
}

// OpenAuxiliaryChannel forwards to the sink.
func (e *Emitter) OpenAuxiliaryChannel(id string) (io.WriteCloser, error) {
	return e.sink.OpenAuxiliaryChannel(id)
}

// Dropped returns the number of events discarded by the drop policy.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }
