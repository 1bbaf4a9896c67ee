package domain

import (
	"context"
	"io"
)

// EventSink is the contract producers write to.
type EventSink interface {
	// Emit records one event. timestamp is a monotonic clock reading in
	// nanoseconds, payload must not contain line breaks.
	Emit(timestamp int64, kind EventKind, payload string) error

	// OpenAuxiliaryChannel returns a raw byte sink bound to the current
	// recording. The caller closes it when done writing; the underlying file
	// is owned and finally closed by the session.
	OpenAuxiliaryChannel(id string) (io.WriteCloser, error)
}

// RecordingSession is the storage a logger is bound to while running.
type RecordingSession interface {
	RecordingID() string
	Name() string
	Path() string
	StartTimestamp() int64
	IsOpen() bool

	// Stream is the primary output stream. Only the bound logger writes to it.
	Stream() io.Writer

	OpenAuxiliaryChannel(id string) (io.WriteCloser, error)
}

// BufferStrategy buffers formatted events and commits them to the session stream.
type BufferStrategy interface {
	// Name identifies the strategy in stats and catalogs.
	Name() string

	// Start prepares the strategy to commit into w.
	Start(w io.Writer) error

	// Record accepts one event. It may return ErrBufferFull or an I/O error
	// raised by a commit it triggered.
	Record(e Event) error

	// Stop drains and commits everything still buffered and returns the first
	// I/O error seen during the strategy's lifetime.
	Stop() error

	// Cached is the number of entries not yet committed.
	Cached() int64

	// FillLevel is a normalized buffer pressure indicator in [0,1].
	FillLevel() float64
}

// RecordingCatalog indexes finished recordings.
type RecordingCatalog interface {
	// Index inserts or replaces the catalog entry for rec.
	Index(ctx context.Context, rec Recording) error

	// List returns the most recently closed recordings first.
	List(ctx context.Context, limit int) ([]Recording, error)
}
