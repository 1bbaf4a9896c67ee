package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const (
	recordingKeyPrefix = "recording:"
	recordingsIndexKey = "recordings:by_closed_at"
)

// CatalogRepository implements domain.RecordingCatalog on Redis: one JSON
// document per recording plus a sorted set scored by close time.
type CatalogRepository struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewCatalogRepository creates a new Redis recording catalog.
func NewCatalogRepository(client redis.Cmdable, logger *slog.Logger) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		logger: logger.With("component", "redis_catalog"),
	}
}

func recordingKey(id string) string { return recordingKeyPrefix + id }

// Index stores rec and (re)scores it in the close-time index atomically.
func (r *CatalogRepository) Index(ctx context.Context, rec domain.Recording) error {
	if rec.ID == "" {
		return errors.New("recording id is required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recording %s: %w", rec.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordingKey(rec.ID), payload, 0)
		pipe.ZAdd(ctx, recordingsIndexKey, redis.Z{
			Score:  float64(rec.ClosedAt.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index recording %s: %w", rec.ID, err)
	}
	return nil
}

// List returns the most recently closed recordings first. limit <= 0 returns all.
func (r *CatalogRepository) List(ctx context.Context, limit int) ([]domain.Recording, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.client.ZRevRange(ctx, recordingsIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordingKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load recordings: %w", err)
	}

	recs := make([]domain.Recording, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// indexed but the document is gone
			r.logger.Warn("Recording missing from catalog", "recording_id", ids[i])
			continue
		}
		var rec domain.Recording
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.Error("Failed to unmarshal recording", "error", err, "recording_id", ids[i])
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

var _ domain.RecordingCatalog = (*CatalogRepository)(nil)
