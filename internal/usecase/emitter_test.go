package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
	"github.com/V4T54L/sensor-recorder/internal/domain/mocks"
)

func TestEmitter_Policies(t *testing.T) {
	logger := discardLogger()
	ctx := context.Background()

	t.Run("Block Retries Until Accepted", func(t *testing.T) {
		sink := &mocks.MockSink{FullFor: 3}
		em, err := NewEmitter(sink, "block", time.Millisecond, logger)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := em.Emit(ctx, 5, domain.KindLight, "42"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		calls, lines := sink.Snapshot()
		if calls != 4 {
			t.Errorf("expected 4 attempts, got %d", calls)
		}
		if len(lines) != 1 {
			t.Errorf("expected 1 accepted line, got %d", len(lines))
		}
	})

	t.Run("Block Honors Context", func(t *testing.T) {
		sink := &mocks.MockSink{FullFor: 1 << 30}
		em, _ := NewEmitter(sink, "block", time.Millisecond, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := em.Emit(ctx, 5, domain.KindLight, "42")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Drop Swallows", func(t *testing.T) {
		sink := &mocks.MockSink{FullFor: 2}
		em, _ := NewEmitter(sink, "drop", 0, logger)
		for i := 0; i < 3; i++ {
			if err := em.Emit(ctx, int64(i), domain.KindLight, "v"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		}
		if em.Dropped() != 2 {
			t.Errorf("expected 2 dropped events, got %d", em.Dropped())
		}
		if _, lines := sink.Snapshot(); len(lines) != 1 {
			t.Errorf("expected 1 accepted line, got %d", len(lines))
		}
	})

	t.Run("Reject Returns Capacity Error", func(t *testing.T) {
		sink := &mocks.MockSink{FullFor: 1}
		em, _ := NewEmitter(sink, "reject", 0, logger)
		err := em.Emit(ctx, 1, domain.KindLight, "v")
		var capErr *domain.CapacityError
		if !errors.As(err, &capErr) {
			t.Errorf("expected CapacityError, got %v", err)
		}
		if calls, _ := sink.Snapshot(); calls != 1 {
			t.Errorf("expected a single attempt, got %d", calls)
		}
	})

	t.Run("Other Errors Pass Through", func(t *testing.T) {
		sink := &mocks.MockSink{EmitErr: domain.ErrNotRunning}
		em, _ := NewEmitter(sink, "block", time.Millisecond, logger)
		if err := em.Emit(ctx, 1, domain.KindLight, "v"); !errors.Is(err, domain.ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got %v", err)
		}
	})

	t.Run("Unknown Policy", func(t *testing.T) {
		if _, err := NewEmitter(&mocks.MockSink{}, "spill", 0, logger); err == nil {
			t.Error("expected an error for unknown policy")
		}
	})
}
