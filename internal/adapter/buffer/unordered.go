package buffer

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const (
	DefaultQueueCapacity = 5000
	DefaultIdleSleep     = 10 * time.Millisecond
	defaultWriteBatch    = 512

	unorderedName = "unordered"
)

// Unordered is the live-unordered strategy: producers enqueue into a bounded
// FIFO and a single writer goroutine commits lines in dequeue order. The
// output is not sorted; consumers must reorder it offline.
type Unordered struct {
	queue     *BoundedQueue
	idleSleep time.Duration
	batchSize int
	metrics   *metrics.RecorderMetrics
	logger    *slog.Logger

	running atomic.Bool

	mu     sync.RWMutex // Start and Stop exclusive, Record shared
	w      io.Writer
	stopCh chan struct{}
	doneCh chan struct{}

	errMu    sync.Mutex
	firstErr error
}

// UnorderedOption configures an Unordered strategy.
type UnorderedOption func(*Unordered)

// WithQueueCapacity fixes the queue capacity.
func WithQueueCapacity(capacity int) UnorderedOption {
	return func(u *Unordered) { u.queue = NewBoundedQueue(capacity) }
}

// WithIdleSleep sets how long the writer waits when the queue is empty.
func WithIdleSleep(d time.Duration) UnorderedOption {
	return func(u *Unordered) { u.idleSleep = d }
}

// WithUnorderedMetrics attaches metrics.
func WithUnorderedMetrics(m *metrics.RecorderMetrics) UnorderedOption {
	return func(u *Unordered) { u.metrics = m }
}

// WithUnorderedLogger sets the diagnostic logger.
func WithUnorderedLogger(l *slog.Logger) UnorderedOption {
	return func(u *Unordered) { u.logger = l }
}

// NewUnordered creates the live-unordered strategy.
func NewUnordered(opts ...UnorderedOption) *Unordered {
	u := &Unordered{
		idleSleep: DefaultIdleSleep,
		batchSize: defaultWriteBatch,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.queue == nil {
		u.queue = NewBoundedQueue(DefaultQueueCapacity)
	}
	if u.idleSleep <= 0 {
		u.idleSleep = DefaultIdleSleep
	}
	u.logger = u.logger.With("component", "unordered_buffer")
	return u
}

func (u *Unordered) Name() string { return unorderedName }

func (u *Unordered) Start(w io.Writer) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running.Load() {
		return fmt.Errorf("unordered buffer already started: %w", domain.ErrLoggerState)
	}
	u.errMu.Lock()
	u.firstErr = nil
	u.errMu.Unlock()

	u.w = w
	u.stopCh = make(chan struct{})
	u.doneCh = make(chan struct{})
	u.running.Store(true)
	go u.writeBack(u.w, u.stopCh, u.doneCh)
	return nil
}

// Record enqueues e. A full queue is reported as a *domain.CapacityError;
// the event is neither blocked on nor silently dropped. An event accepted
// before a concurrent Stop is always written by it.
func (u *Unordered) Record(e domain.Event) error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.running.Load() {
		return domain.ErrNotRunning
	}
	if !u.queue.Offer(e) {
		return &domain.CapacityError{Capacity: u.queue.Cap()}
	}
	return nil
}

// Stop signals the writer and waits until every queued event was written.
func (u *Unordered) Stop() error {
	u.mu.Lock()
	if !u.running.CompareAndSwap(true, false) {
		u.mu.Unlock()
		return fmt.Errorf("unordered buffer not started: %w", domain.ErrLoggerState)
	}
	close(u.stopCh)
	done := u.doneCh
	w := u.w
	u.mu.Unlock()

	<-done

	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			u.setErr(fmt.Errorf("flush recording stream: %w", err))
		}
	}
	u.errMu.Lock()
	defer u.errMu.Unlock()
	return u.firstErr
}

func (u *Unordered) Cached() int64 { return int64(u.queue.Len()) }

func (u *Unordered) FillLevel() float64 {
	return 1 - float64(u.queue.Remaining())/float64(u.queue.Cap())
}

// Capacity returns the fixed queue capacity.
func (u *Unordered) Capacity() int { return u.queue.Cap() }

func (u *Unordered) writeBack(w io.Writer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	stopping := false
	for {
		batch := u.queue.PollBatch(u.batchSize)
		if len(batch) == 0 {
			if stopping {
				return
			}
			select {
			case <-stop:
				// one more poll to pick up anything enqueued before the stop signal
				stopping = true
			case <-time.After(u.idleSleep):
			}
			continue
		}
		u.write(w, batch)
	}
}

func (u *Unordered) write(w io.Writer, batch []domain.Event) {
	failed := 0
	for _, e := range batch {
		if _, err := io.WriteString(w, e.Line); err != nil {
			failed++
			u.setErr(fmt.Errorf("write unordered event: %w", err))
		}
	}
	u.metrics.ObserveCommit(unorderedName, len(batch))
	if failed > 0 {
		u.metrics.ObserveWriteError(unorderedName)
		u.logger.Error("failed to write events", "failed", failed, "entries", len(batch))
	}
}

func (u *Unordered) setErr(err error) {
	u.errMu.Lock()
	defer u.errMu.Unlock()
	if u.firstErr == nil {
		u.firstErr = err
	}
}

var _ domain.BufferStrategy = (*Unordered)(nil)
