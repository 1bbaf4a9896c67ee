package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const (
	filePerm        = 0644
	writeBufferSize = 64 << 10

	// RemarkBanner opens the remark block appended by CloseWithRemark.
	RemarkBanner = "# ==================== REMARK ===================="
	// RemarkPrefix starts every remark line.
	RemarkPrefix = "# "
)

// Session is one recording: a buffered primary stream plus any number of
// named auxiliary streams stored next to it.
type Session struct {
	id      uuid.UUID
	name    string
	path    string
	startTS int64
	logger  *slog.Logger

	mu      sync.Mutex
	open    bool
	file    *os.File
	writer  *bufio.Writer
	aux     map[string]*auxChannel
	auxKeys []string
}

// Create opens a new primary stream at path. Existing files are never
// overwritten.
func Create(startTS int64, path string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s := &Session{
		id:      uuid.New(),
		name:    name,
		path:    path,
		startTS: startTS,
		open:    true,
		file:    f,
		writer:  bufio.NewWriterSize(f, writeBufferSize),
		aux:     make(map[string]*auxChannel),
	}
	s.logger = logger.With("component", "recording_session", "recording_id", s.id.String())
	s.logger.Info("Opened recording", "path", path, "start_ts", startTS)
	return s, nil
}

func (s *Session) ID() uuid.UUID         { return s.id }
func (s *Session) RecordingID() string   { return s.id.String() }
func (s *Session) Name() string          { return s.name }
func (s *Session) Path() string          { return s.path }
func (s *Session) StartTimestamp() int64 { return s.startTS }

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Stream returns the primary stream. Writes after close fail with
// domain.ErrSessionClosed.
func (s *Session) Stream() io.Writer { return primaryStream{s} }

// AuxiliaryPath returns the file path used for the auxiliary channel id.
func (s *Session) AuxiliaryPath(id string) string { return s.path + "." + id }

// OpenAuxiliaryChannel opens the raw side channel id. Each id can be opened
// once per session.
func (s *Session) OpenAuxiliaryChannel(id string) (io.WriteCloser, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid auxiliary channel id %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, domain.ErrSessionClosed
	}
	if _, ok := s.aux[id]; ok {
		return nil, fmt.Errorf("channel %q: %w", id, domain.ErrDuplicateChannel)
	}

	path := s.AuxiliaryPath(id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open auxiliary channel %s: %w", path, err)
	}
	ch := &auxChannel{id: id, path: path, file: f, writer: bufio.NewWriterSize(f, writeBufferSize)}
	s.aux[id] = ch
	s.auxKeys = append(s.auxKeys, id)
	s.logger.Info("Opened auxiliary channel", "channel", id, "path", path)
	return ch, nil
}

// Close flushes and closes the primary stream and every auxiliary stream.
// All streams are closed even if one fails; the first error is returned.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// CloseWithRemark appends a comment block with text to the primary stream and
// closes the session.
func (s *Session) CloseWithRemark(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return domain.ErrSessionClosed
	}

	var b strings.Builder
	b.WriteString(RemarkBanner)
	b.WriteByte('\n')
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(RemarkPrefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var firstErr error
	if _, err := s.writer.WriteString(b.String()); err != nil {
		firstErr = fmt.Errorf("failed to append remark: %w", err)
	}
	if err := s.closeLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Abort closes the session and deletes the primary file and all auxiliary files.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.open {
		if err := s.closeLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	paths := []string{s.path}
	for _, id := range s.auxKeys {
		paths = append(paths, s.aux[id].path)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to remove recording file", "path", p, "error", err)
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", p, err))
		}
	}
	s.logger.Info("Recording aborted", "path", s.path)
	return errors.Join(errs...)
}

func (s *Session) closeLocked() error {
	if !s.open {
		return domain.ErrSessionClosed
	}
	s.open = false

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.writer.Flush(); err != nil {
		keep(fmt.Errorf("failed to flush recording: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		s.logger.Error("Failed to sync recording", "error", err)
	}
	if err := s.file.Close(); err != nil {
		keep(fmt.Errorf("failed to close recording: %w", err))
	}
	for _, id := range s.auxKeys {
		keep(s.aux[id].shutdown())
	}

	if firstErr != nil {
		s.logger.Error("Recording closed with errors", "error", firstErr)
	} else {
		s.logger.Info("Recording closed", "path", s.path, "aux_channels", len(s.auxKeys))
	}
	return firstErr
}

func (s *Session) write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, domain.ErrSessionClosed
	}
	return s.writer.Write(p)
}

func (s *Session) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return domain.ErrSessionClosed
	}
	return s.writer.Flush()
}

// primaryStream is the writer handed to the bound logger.
type primaryStream struct{ s *Session }

func (p primaryStream) Write(b []byte) (int, error) { return p.s.write(b) }
func (p primaryStream) Flush() error                { return p.s.flush() }

// auxChannel is a raw byte stream owned by the session. Close by the producer
// flushes and releases the handle; the file itself is closed with the session.
type auxChannel struct {
	id   string
	path string

	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	released bool
	closed   bool
}

func (c *auxChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || c.closed {
		return 0, fmt.Errorf("auxiliary channel %q: %w", c.id, os.ErrClosed)
	}
	return c.writer.Write(p)
}

func (c *auxChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || c.closed {
		return nil
	}
	c.released = true
	return c.writer.Flush()
}

func (c *auxChannel) shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var firstErr error
	if err := c.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("failed to flush auxiliary channel %s: %w", c.id, err)
	}
	if err := c.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close auxiliary channel %s: %w", c.id, err)
	}
	return firstErr
}

var _ domain.RecordingSession = (*Session)(nil)
