package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const (
	recordingsTableName = "recordings"
	recordingsTempTable = "recordings_temp_import"
)

// Schema creates the catalog table.
const Schema = `
CREATE TABLE IF NOT EXISTS recordings (
	recording_id TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	path         TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	start_ts     BIGINT NOT NULL,
	events       BIGINT NOT NULL,
	bytes        BIGINT NOT NULL,
	remark       TEXT NOT NULL DEFAULT '',
	closed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS recordings_closed_at_idx ON recordings (closed_at DESC);
`

const upsertColumns = `
	ON CONFLICT (recording_id) DO UPDATE SET
		name = EXCLUDED.name,
		path = EXCLUDED.path,
		strategy = EXCLUDED.strategy,
		start_ts = EXCLUDED.start_ts,
		events = EXCLUDED.events,
		bytes = EXCLUDED.bytes,
		remark = EXCLUDED.remark,
		closed_at = EXCLUDED.closed_at`

const selectColumns = `SELECT recording_id, name, path, strategy, start_ts, events, bytes, remark, closed_at FROM recordings`

// CatalogRepository implements domain.RecordingCatalog on PostgreSQL.
type CatalogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCatalogRepository creates a new PostgreSQL recording catalog.
func NewCatalogRepository(db *sql.DB, logger *slog.Logger) *CatalogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogRepository{db: db, logger: logger.With("component", "postgres_catalog")}
}

// EnsureSchema creates the catalog table if it does not exist.
func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// Index upserts one recording keyed by its recording id.
func (r *CatalogRepository) Index(ctx context.Context, rec domain.Recording) error {
	query := `INSERT INTO ` + recordingsTableName + ` (recording_id, name, path, strategy, start_ts, events, bytes, remark, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)` + upsertColumns
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Path, rec.Strategy, rec.StartTimestamp, rec.Events, rec.Bytes, rec.Remark, rec.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to index recording %s: %w", rec.ID, err)
	}
	return nil
}

// IndexBatch upserts many recordings in one transaction using the COPY
// protocol into a temporary staging table.
func (r *CatalogRepository) IndexBatch(ctx context.Context, recs []domain.Recording) error {
	if len(recs) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+recordingsTempTable+` (LIKE `+recordingsTableName+` INCLUDING DEFAULTS) ON COMMIT DROP`)
	if err != nil {
		return err
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(recordingsTempTable,
		"recording_id", "name", "path", "strategy", "start_ts", "events", "bytes", "remark", "closed_at"))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		_, err = stmt.ExecContext(ctx, rec.ID, rec.Name, rec.Path, rec.Strategy, rec.StartTimestamp, rec.Events, rec.Bytes, rec.Remark, rec.ClosedAt)
		if err != nil {
			_ = stmt.Close()
			return err
		}
	}
	// an argument-less Exec flushes the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	upsertQuery := `INSERT INTO ` + recordingsTableName + ` (recording_id, name, path, strategy, start_ts, events, bytes, remark, closed_at)
		SELECT recording_id, name, path, strategy, start_ts, events, bytes, remark, closed_at FROM ` + recordingsTempTable + upsertColumns
	if _, err := txn.ExecContext(ctx, upsertQuery); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}
	r.logger.Info("Indexed recordings", "count", len(recs))
	return nil
}

// List returns the most recently closed recordings first. limit <= 0 returns all.
func (r *CatalogRepository) List(ctx context.Context, limit int) ([]domain.Recording, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, selectColumns+` ORDER BY closed_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, selectColumns+` ORDER BY closed_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recording
	for rows.Next() {
		var rec domain.Recording
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Strategy, &rec.StartTimestamp, &rec.Events, &rec.Bytes, &rec.Remark, &rec.ClosedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.RecordingCatalog = (*CatalogRepository)(nil)
