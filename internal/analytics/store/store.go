// Package store persists periodic snapshots of the analytics aggregate to
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
    ON analytics_snapshots (captured_at DESC);
`

// Store persists aggregated analytics snapshots in PostgreSQL and keeps at
// most retention rows.
type Store struct {
	db        *postgres.Client
	retention int
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

func New(db *postgres.Client, retention int) *Store {
	return &Store{
		db:        db,
		retention: retention,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable:    postgres.IsRetryable,
		},
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

// SaveSnapshot inserts a snapshot and prunes rows beyond the retention
// limit in one transaction, retrying transient failures.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	err = resilience.Retry(ctx, "save analytics snapshot", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
				data, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("inserting snapshot: %w", err)
			}
			if s.retention <= 0 {
				return nil
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM analytics_snapshots WHERE id NOT IN (
				     SELECT id FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1)`,
				s.retention,
			); err != nil {
				return fmt.Errorf("pruning snapshots: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_searches", stats.TotalSearches,
		"rebuilds", stats.Rebuilds,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot. Returns nil, nil if no
// snapshots exist yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns the last limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, *snap)
	}

	return snapshots, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*analytics.Snapshot, error) {
	var (
		snap analytics.Snapshot
		data []byte
	)
	if err := row.Scan(&snap.ID, &data, &snap.CapturedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &snap.Stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot %d: %w", snap.ID, err)
	}
	return &snap, nil
}
