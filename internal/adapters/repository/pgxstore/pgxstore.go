// Package pgxstore keeps the blocklist in Postgres through a pgx pool.
package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/model"
)

// Store is a repository.Store over a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

var _ repository.Store = (*Store)(nil)

// New wraps an existing pool. table is quoted with pgx.Identifier.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = "blocklist"
	}
	return &Store{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// Migrate creates the blocklist table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return repository.ErrNilStore
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id     TEXT PRIMARY KEY,
			reason      TEXT,
			block_count INTEGER NOT NULL DEFAULT 1
		)`, s.table))
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// ListUserIDs returns every user_id in table scan order.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, repository.ErrNilStore
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT user_id FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Get returns the record for userID.
func (s *Store) Get(ctx context.Context, userID string) (model.BlockRecord, error) {
	if s == nil || s.pool == nil {
		return model.BlockRecord{}, repository.ErrNilStore
	}
	var rec model.BlockRecord
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT user_id, reason, %s FROM %s WHERE user_id = $1`, repository.CountExpr("block_count"), s.table),
		userID,
	).Scan(&rec.UserID, &rec.Reason, &rec.BlockCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BlockRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return model.BlockRecord{}, fmt.Errorf("postgres: get: %w", err)
	}
	return rec, nil
}

// Increment inserts with count 1 or bumps the existing count in one statement.
func (s *Store) Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.write(ctx, "increment", fmt.Sprintf(`
		INSERT INTO %[1]s AS t (user_id, reason, block_count) VALUES ($1, $2, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			block_count = %[2]s + 1,
			reason      = EXCLUDED.reason
		RETURNING user_id, reason, block_count, (xmax = 0)`, s.table, repository.CountExpr("t.block_count")), r)
}

// Upsert inserts or replaces the record with count 1.
func (s *Store) Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.write(ctx, "upsert", fmt.Sprintf(`
		INSERT INTO %[1]s AS t (user_id, reason, block_count) VALUES ($1, $2, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			block_count = 1,
			reason      = EXCLUDED.reason
		RETURNING user_id, reason, block_count, (xmax = 0)`, s.table), r)
}

// write runs an upsert statement; xmax = 0 marks a freshly inserted row.
func (s *Store) write(ctx context.Context, op, q string, r model.Report) (model.ReportOutcome, error) {
	if s == nil || s.pool == nil {
		return model.ReportOutcome{}, repository.ErrNilStore
	}
	if r.UserID == "" {
		return model.ReportOutcome{}, repository.ErrEmptyUser
	}
	var out model.ReportOutcome
	err := s.pool.QueryRow(ctx, q, r.UserID, r.Reason).
		Scan(&out.Record.UserID, &out.Record.Reason, &out.Record.BlockCount, &out.Created)
	if err != nil {
		return model.ReportOutcome{}, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return out, nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil || s.pool == nil {
		return 0, repository.ErrNilStore
	}
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Ping checks one pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return repository.ErrNilStore
	}
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
