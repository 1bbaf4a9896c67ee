package buffer

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/adapter/metrics"
	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const (
	DefaultUpperWindow = 10 * time.Second
	DefaultLowerWindow = 7 * time.Second

	orderedName = "ordered"
)

// flusher is implemented by buffered streams such as the session's primary stream.
type flusher interface {
	Flush() error
}

// reorderBuffer is the unsynchronized working set of the ordered strategy.
// Once the buffered events span more than upper, everything older than
// newest-lower is cut in timestamp order.
type reorderBuffer struct {
	upper   int64
	lower   int64
	entries []domain.Event
	oldest  int64
	newest  int64
}

func newReorderBuffer(upper, lower time.Duration) *reorderBuffer {
	return &reorderBuffer{upper: int64(upper), lower: int64(lower)}
}

// add inserts e and returns the slice to commit, or nil if the window is not exceeded yet.
func (b *reorderBuffer) add(e domain.Event) []domain.Event {
	if len(b.entries) == 0 {
		b.oldest, b.newest = e.Timestamp, e.Timestamp
	} else {
		b.oldest = min(b.oldest, e.Timestamp)
		b.newest = max(b.newest, e.Timestamp)
	}
	b.entries = append(b.entries, e)

	if b.newest-b.oldest <= b.upper {
		return nil
	}

	sortEvents(b.entries)
	boundary := b.newest - b.lower
	n := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Timestamp > boundary
	})

	committed := b.entries[:n:n]
	rest := b.entries[n:]
	b.entries = append(make([]domain.Event, 0, max(2*len(rest), 64)), rest...)
	if len(b.entries) > 0 {
		b.oldest = b.entries[0].Timestamp
		b.newest = b.entries[len(b.entries)-1].Timestamp
	}
	return committed
}

// drain returns every buffered entry in timestamp order and empties the buffer.
func (b *reorderBuffer) drain() []domain.Event {
	out := b.entries
	sortEvents(out)
	b.entries = nil
	return out
}

func (b *reorderBuffer) size() int { return len(b.entries) }

func (b *reorderBuffer) timespan() int64 {
	if len(b.entries) == 0 {
		return 0
	}
	return b.newest - b.oldest
}

// sortEvents is stable so events with equal timestamps keep their arrival order.
func sortEvents(events []domain.Event) {
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
}

// Ordered is the live-ordered strategy. Within one commit the written
// timestamps never decrease. An event delayed by more than upper-lower can
// still land behind an earlier commit; such events are written anyway and
// counted as reorder violations.
type Ordered struct {
	upper   time.Duration
	lower   time.Duration
	metrics *metrics.RecorderMetrics
	logger  *slog.Logger

	mu      sync.Mutex // guards buf and running
	buf     *reorderBuffer
	running bool

	// commitMu is taken before mu is released so commits reach the stream in
	// the order they were cut from the buffer.
	commitMu      sync.Mutex
	w             io.Writer
	lastCommitted int64
	committedAny  bool
	violations    int64
	firstErr      error
}

// OrderedOption configures an Ordered strategy.
type OrderedOption func(*Ordered)

// WithWindows sets the flush trigger width (upper) and retained margin (lower).
func WithWindows(upper, lower time.Duration) OrderedOption {
	return func(o *Ordered) {
		o.upper = upper
		o.lower = lower
	}
}

// WithOrderedMetrics attaches metrics.
func WithOrderedMetrics(m *metrics.RecorderMetrics) OrderedOption {
	return func(o *Ordered) { o.metrics = m }
}

// WithOrderedLogger sets the diagnostic logger.
func WithOrderedLogger(l *slog.Logger) OrderedOption {
	return func(o *Ordered) { o.logger = l }
}

// NewOrdered creates the live-ordered strategy.
func NewOrdered(opts ...OrderedOption) (*Ordered, error) {
	o := &Ordered{
		upper:  DefaultUpperWindow,
		lower:  DefaultLowerWindow,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.lower < 0 || o.upper <= 0 || o.lower >= o.upper {
		return nil, fmt.Errorf("invalid reorder windows: lower %s must be >= 0 and below upper %s", o.lower, o.upper)
	}
	o.logger = o.logger.With("component", "ordered_buffer")
	o.buf = newReorderBuffer(o.upper, o.lower)
	return o, nil
}

func (o *Ordered) Name() string { return orderedName }

func (o *Ordered) Start(w io.Writer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("ordered buffer already started: %w", domain.ErrLoggerState)
	}
	o.commitMu.Lock()
	o.w = w
	o.committedAny = false
	o.violations = 0
	o.firstErr = nil
	o.commitMu.Unlock()
	o.buf = newReorderBuffer(o.upper, o.lower)
	o.running = true
	return nil
}

func (o *Ordered) Record(e domain.Event) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return domain.ErrNotRunning
	}
	batch := o.buf.add(e)
	if batch == nil {
		o.mu.Unlock()
		return nil
	}
	o.commitMu.Lock()
	o.mu.Unlock()
	defer o.commitMu.Unlock()
	return o.commitLocked(batch)
}

// Flush commits the whole working set regardless of the window.
func (o *Ordered) Flush() error {
	o.mu.Lock()
	batch := o.buf.drain()
	o.commitMu.Lock()
	o.mu.Unlock()
	defer o.commitMu.Unlock()
	if err := o.commitLocked(batch); err != nil {
		return err
	}
	return o.flushStreamLocked()
}

func (o *Ordered) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("ordered buffer not started: %w", domain.ErrLoggerState)
	}
	o.running = false
	batch := o.buf.drain()
	o.commitMu.Lock()
	o.mu.Unlock()
	defer o.commitMu.Unlock()

	_ = o.commitLocked(batch)
	_ = o.flushStreamLocked()
	if o.violations > 0 {
		o.logger.Info("ordered buffer stopped with late events", "violations", o.violations)
	}
	return o.firstErr
}

func (o *Ordered) Cached() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(o.buf.size())
}

// FillLevel is the buffered timespan relative to the upper window; it does
// not reflect the number of entries.
func (o *Ordered) FillLevel() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	level := float64(o.buf.timespan()) / float64(o.upper)
	return min(max(level, 0), 1)
}

// Violations returns the number of events committed behind an earlier commit.
func (o *Ordered) Violations() int64 {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()
	return o.violations
}

// commitLocked writes batch in order. Every entry is attempted; the first
// write error is returned and remembered for Stop.
func (o *Ordered) commitLocked(batch []domain.Event) error {
	if len(batch) == 0 {
		return nil
	}
	var firstErr error
	for _, e := range batch {
		if o.committedAny && e.Timestamp < o.lastCommitted {
			o.violations++
			o.metrics.ObserveReorderViolation()
			o.logger.Debug("late event committed out of order",
				"ts", e.Timestamp, "last_committed", o.lastCommitted, "kind", e.Kind.String())
		} else {
			o.lastCommitted = e.Timestamp
		}
		o.committedAny = true

		if _, err := io.WriteString(o.w, e.Line); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("commit ordered events: %w", err)
		}
	}
	o.metrics.ObserveCommit(orderedName, len(batch))
	if firstErr != nil {
		o.metrics.ObserveWriteError(orderedName)
		o.logger.Error("failed to commit events", "error", firstErr, "entries", len(batch))
		if o.firstErr == nil {
			o.firstErr = firstErr
		}
	}
	return firstErr
}

func (o *Ordered) flushStreamLocked() error {
	f, ok := o.w.(flusher)
	if !ok {
		return nil
	}
	if err := f.Flush(); err != nil {
		err = fmt.Errorf("flush recording stream: %w", err)
		if o.firstErr == nil {
			o.firstErr = err
		}
		return err
	}
	return nil
}

var _ domain.BufferStrategy = (*Ordered)(nil)
