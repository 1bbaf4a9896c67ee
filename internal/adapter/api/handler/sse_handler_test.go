package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

func TestStatsBroker_StreamsStats(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &MockRecorderService{StatsResult: domain.LoggerStats{Session: "walk", Running: true, Events: 42}}
	broker := NewStatsBroker(ctx, svc, 20*time.Millisecond, logger)

	srv := httptest.NewServer(broker)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()

	select {
	case data := <-lines:
		var msg StatsMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			t.Fatalf("bad json %q: %v", data, err)
		}
		if msg.Session != "walk" || msg.Events != 42 {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stats message received")
	}
}

func TestStatsBroker_ClientLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewStatsBroker(ctx, &MockRecorderService{}, time.Hour, logger)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil).WithContext(reqCtx)
	done := make(chan struct{})
	go func() {
		broker.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for broker.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	reqCancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client went away")
	}
	if n := broker.Clients(); n != 0 {
		t.Errorf("expected 0 clients, got %d", n)
	}
}
