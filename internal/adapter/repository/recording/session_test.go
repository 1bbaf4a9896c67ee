package recording

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Create(1000, filepath.Join(t.TempDir(), "walk.csv"), testLogger)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestSession_Create(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	if s.Name() != "walk" {
		t.Errorf("expected name walk, got %q", s.Name())
	}
	if s.StartTimestamp() != 1000 {
		t.Errorf("expected start 1000, got %d", s.StartTimestamp())
	}
	if s.RecordingID() == "" || s.RecordingID() != s.ID().String() {
		t.Errorf("unexpected recording id %q", s.RecordingID())
	}
	if !s.IsOpen() {
		t.Error("expected session to be open")
	}

	if _, err := Create(0, s.Path(), testLogger); err == nil {
		t.Error("expected creating over an existing recording to fail")
	}
}

func TestSession_Stream(t *testing.T) {
	s := newTestSession(t)
	if _, err := io.WriteString(s.Stream(), "0;0;x\n"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := readFile(t, s.Path()); got != "0;0;x\n" {
		t.Errorf("expected flushed contents, got %q", got)
	}
	if _, err := io.WriteString(s.Stream(), "late\n"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed on second close, got %v", err)
	}
}

func TestSession_AuxiliaryChannels(t *testing.T) {
	s := newTestSession(t)

	mic, err := s.OpenAuxiliaryChannel("mic")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := mic.Write([]byte("pcm-1")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := s.OpenAuxiliaryChannel("mic"); !errors.Is(err, domain.ErrDuplicateChannel) {
		t.Errorf("expected ErrDuplicateChannel, got %v", err)
	}
	if _, err := s.OpenAuxiliaryChannel("../escape"); err == nil {
		t.Error("expected invalid channel id to fail")
	}

	cam, err := s.OpenAuxiliaryChannel("cam")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, _ = cam.Write([]byte("frame"))
	if err := cam.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := cam.Write([]byte("more")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("expected os.ErrClosed after producer close, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := readFile(t, s.AuxiliaryPath("mic")); got != "pcm-1" {
		t.Errorf("expected mic contents to survive close, got %q", got)
	}
	if got := readFile(t, s.AuxiliaryPath("cam")); got != "frame" {
		t.Errorf("expected cam contents, got %q", got)
	}
	if _, err := mic.Write([]byte("late")); err == nil {
		t.Error("expected write after session close to fail")
	}
	if _, err := s.OpenAuxiliaryChannel("imu"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_CloseWithRemark(t *testing.T) {
	s := newTestSession(t)
	_, _ = io.WriteString(s.Stream(), "0;0;x\n")

	if err := s.CloseWithRemark("a\nb"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "0;0;x\n" + RemarkBanner + "\n# a\n# b\n"
	if got := readFile(t, s.Path()); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if s.IsOpen() {
		t.Error("expected session to be closed")
	}
	if _, err := io.WriteString(s.Stream(), "late\n"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.CloseWithRemark("again"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	got := readFile(t, s.Path())
	if strings.Count(got, RemarkBanner) != 1 {
		t.Errorf("expected a single remark block, got %q", got)
	}
}

func TestSession_Abort(t *testing.T) {
	t.Run("Open Session", func(t *testing.T) {
		s := newTestSession(t)
		_, _ = io.WriteString(s.Stream(), "0;0;x\n")
		if _, err := s.OpenAuxiliaryChannel("mic"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if err := s.Abort(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, p := range []string{s.Path(), s.AuxiliaryPath("mic")} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("expected %s to be removed, stat err %v", p, err)
			}
		}
		if s.IsOpen() {
			t.Error("expected session to be closed")
		}
	})

	t.Run("Closed Session", func(t *testing.T) {
		s := newTestSession(t)
		_ = s.Close()
		if err := s.Abort(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
			t.Errorf("expected recording to be removed, stat err %v", err)
		}
	})
}
