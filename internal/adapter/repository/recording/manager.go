package recording

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// FileExtension is the suffix of primary recording files.
const FileExtension = ".csv"

// Manager creates sessions inside one directory and keeps track of the
// current one. At most one session is open at any time.
type Manager struct {
	root   string
	clock  domain.Clock
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates the root directory if needed.
func NewManager(root string, clock domain.Clock, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory %s: %w", root, err)
	}
	if clock == nil {
		clock = domain.MonotonicNow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:   root,
		clock:  clock,
		logger: logger.With("component", "recording_manager"),
	}, nil
}

// Root returns the managed directory.
func (m *Manager) Root() string { return m.root }

type sessionOptions struct {
	name    string
	startTS int64
	hasTS   bool
}

// SessionOption customizes StartNewSession.
type SessionOption func(*sessionOptions)

// WithName sets the recording name. The file is <root>/<name>.csv.
func WithName(name string) SessionOption {
	return func(o *sessionOptions) { o.name = name }
}

// WithStartTimestamp sets the session start instead of reading the clock.
func WithStartTimestamp(ts int64) SessionOption {
	return func(o *sessionOptions) {
		o.startTS = ts
		o.hasTS = true
	}
}

// StartNewSession opens a new session. It fails with domain.ErrSessionActive
// while the current session is still open.
func (m *Manager) StartNewSession(opts ...SessionOption) (*Session, error) {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.IsOpen() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionActive, m.current.Name())
	}
	if !o.hasTS {
		o.startTS = m.clock()
	}
	if o.name == "" {
		o.name = strconv.FormatInt(o.startTS, 10)
	}
	if strings.ContainsAny(o.name, `/\`) || o.name == "." || o.name == ".." {
		return nil, fmt.Errorf("invalid recording name %q", o.name)
	}

	s, err := Create(o.startTS, filepath.Join(m.root, o.name+FileExtension), m.logger)
	if err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// CurrentSession returns the most recently started session, or nil.
func (m *Manager) CurrentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// List returns all recordings in the managed directory, sorted by name.
func (m *Manager) List() ([]domain.RecordingFile, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var files []domain.RecordingFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, domain.RecordingFile{
			Name:    strings.TrimSuffix(entry.Name(), FileExtension),
			Path:    filepath.Join(m.root, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Newest returns the most recently modified recording.
func (m *Manager) Newest() (domain.RecordingFile, bool, error) {
	files, err := m.List()
	if err != nil || len(files) == 0 {
		return domain.RecordingFile{}, false, err
	}
	newest := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(newest.ModTime) {
			newest = f
		}
	}
	return newest, true, nil
}
