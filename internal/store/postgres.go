package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists snapshots and the job archive in Postgres. Snapshots
// live one row per facility; archive rows only ever append.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pooled connection to Postgres.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveSnapshot upserts the facility's snapshot row.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *scheduler.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO facility_snapshots (facility, taken_at, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (facility) DO UPDATE SET taken_at = EXCLUDED.taken_at, data = EXCLUDED.data
	`, snap.Facility, snap.TakenAt, data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Facility, err)
	}
	return nil
}

// LoadSnapshot fetches and decodes the facility's snapshot row.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, facility string) (*scheduler.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM facility_snapshots WHERE facility = $1
	`, facility).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, facility)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", facility, err)
	}
	var snap scheduler.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", facility, err)
	}
	return &snap, nil
}

// ListFacilities returns every saved facility id, sorted.
func (s *PostgresStore) ListFacilities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT facility FROM facility_snapshots ORDER BY facility`)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	return ids, nil
}

// AppendArchive adds one terminal-job row.
func (s *PostgresStore) AppendArchive(ctx context.Context, facility string, entry scheduler.ArchiveEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO job_archive (facility, job_id, state, data)
		VALUES ($1, $2, $3, $4)
	`, facility, entry.JobID, entry.State, data)
	if err != nil {
		return fmt.Errorf("append archive %s: %w", facility, err)
	}
	return nil
}
