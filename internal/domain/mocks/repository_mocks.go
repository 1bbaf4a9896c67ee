package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// MockStrategy is a mock implementation of domain.BufferStrategy for testing.
// Every recorded event is written through immediately.
type MockStrategy struct {
	mu        sync.Mutex
	Started   bool
	Stopped   bool
	Events    []domain.Event
	StartErr  error
	RecordErr error
	StopErr   error
	w         io.Writer
}

func (m *MockStrategy) Name() string { return "mock" }

func (m *MockStrategy) Start(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Started = true
	m.w = w
	return nil
}

func (m *MockStrategy) Record(e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Events = append(m.Events, e)
	_, err := io.WriteString(m.w, e.Line)
	return err
}

func (m *MockStrategy) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = true
	return m.StopErr
}

func (m *MockStrategy) Cached() int64 { return 0 }

func (m *MockStrategy) FillLevel() float64 { return 0 }

// Lines returns the recorded lines in record order.
func (m *MockStrategy) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Events))
	for i, e := range m.Events {
		lines[i] = e.Line
	}
	return lines
}

// MockSession is an in-memory domain.RecordingSession.
type MockSession struct {
	mu       sync.Mutex
	ID       string
	SessName string
	StartTS  int64
	Closed   bool
	Buf      bytes.Buffer
	Aux      map[string]*bytes.Buffer
}

// NewMockSession returns an open session starting at startTS.
func NewMockSession(name string, startTS int64) *MockSession {
	return &MockSession{ID: "rec-" + name, SessName: name, StartTS: startTS, Aux: make(map[string]*bytes.Buffer)}
}

func (m *MockSession) RecordingID() string   { return m.ID }
func (m *MockSession) Name() string          { return m.SessName }
func (m *MockSession) Path() string          { return "/mem/" + m.SessName + ".csv" }
func (m *MockSession) StartTimestamp() int64 { return m.StartTS }

func (m *MockSession) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Closed
}

func (m *MockSession) Stream() io.Writer { return mockStream{m} }

func (m *MockSession) OpenAuxiliaryChannel(id string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return nil, domain.ErrSessionClosed
	}
	if _, ok := m.Aux[id]; ok {
		return nil, fmt.Errorf("channel %q: %w", id, domain.ErrDuplicateChannel)
	}
	buf := &bytes.Buffer{}
	m.Aux[id] = buf
	return nopCloser{buf}, nil
}

// Close marks the session closed.
func (m *MockSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}

// Contents returns everything written to the primary stream.
func (m *MockSession) Contents() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Buf.String()
}

type mockStream struct{ m *MockSession }

func (s mockStream) Write(p []byte) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.Closed {
		return 0, domain.ErrSessionClosed
	}
	return s.m.Buf.Write(p)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// MockCatalog is a mock implementation of domain.RecordingCatalog for testing.
type MockCatalog struct {
	mu       sync.Mutex
	Indexed  []domain.Recording
	IndexErr error
	ListErr  error
}

func (m *MockCatalog) Index(ctx context.Context, rec domain.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IndexErr != nil {
		return m.IndexErr
	}
	m.Indexed = append(m.Indexed, rec)
	return nil
}

func (m *MockCatalog) List(ctx context.Context, limit int) ([]domain.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	recs := append([]domain.Recording(nil), m.Indexed...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ClosedAt.After(recs[j].ClosedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// MockSink is a mock implementation of domain.EventSink for testing. It
// rejects the first FullFor calls with a capacity error.
type MockSink struct {
	mu      sync.Mutex
	FullFor int
	EmitErr error
	Calls   int
	Lines   []string
}

func (m *MockSink) Emit(timestamp int64, kind domain.EventKind, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.FullFor > 0 {
		m.FullFor--
		return &domain.CapacityError{Capacity: 1}
	}
	if m.EmitErr != nil {
		return m.EmitErr
	}
	m.Lines = append(m.Lines, domain.FormatLine(timestamp, kind, payload))
	return nil
}

func (m *MockSink) OpenAuxiliaryChannel(id string) (io.WriteCloser, error) {
	return nopCloser{io.Discard}, nil
}

// Snapshot returns the number of calls and the accepted lines.
func (m *MockSink) Snapshot() (int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls, append([]string(nil), m.Lines...)
}

var (
	_ domain.BufferStrategy   = (*MockStrategy)(nil)
	_ domain.RecordingSession = (*MockSession)(nil)
	_ domain.RecordingCatalog = (*MockCatalog)(nil)
	_ domain.EventSink        = (*MockSink)(nil)
)
