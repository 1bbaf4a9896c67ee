package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// StatsMessage is pushed to stream subscribers on every tick.
type StatsMessage struct {
	domain.LoggerStats
	Rate float64 `json:"rate"`
}

// StatsBroker polls the recorder and broadcasts its counters to SSE clients.
type StatsBroker struct {
	svc      RecorderService
	interval time.Duration
	logger   *slog.Logger
	clients  map[chan []byte]struct{}
	mu       sync.RWMutex
}

// NewStatsBroker creates a StatsBroker and starts its polling loop, which
// runs until ctx is cancelled.
func NewStatsBroker(ctx context.Context, svc RecorderService, interval time.Duration, logger *slog.Logger) *StatsBroker {
	if interval <= 0 {
		interval = time.Second
	}
	broker := &StatsBroker{
		svc:      svc,
		interval: interval,
		logger:   logger.With("component", "stats_stream"),
		clients:  make(map[chan []byte]struct{}),
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *StatsBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	messageChan := make(chan []byte, 1)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Clients returns the number of connected subscribers.
func (b *StatsBroker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *StatsBroker) addClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Debug("stream client connected")
}

func (b *StatsBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Debug("stream client disconnected")
	}
}

func (b *StatsBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; it gets the next tick.
		}
	}
}

func (b *StatsBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var lastEvents int64
	lastSession := ""
	lastTimestamp := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			stats := b.svc.Stats()
			if stats.Session != lastSession {
				lastEvents = 0
				lastSession = stats.Session
			}

			rate := 0.0
			if elapsed := now.Sub(lastTimestamp).Seconds(); elapsed > 0 && stats.Events >= lastEvents {
				rate = float64(stats.Events-lastEvents) / elapsed
			}
			lastEvents = stats.Events
			lastTimestamp = now

			jsonData, err := json.Marshal(StatsMessage{LoggerStats: stats, Rate: rate})
			if err != nil {
				b.logger.Error("failed to marshal stats message", "error", err)
				continue
			}
			b.broadcast(jsonData)
		}
	}
}
