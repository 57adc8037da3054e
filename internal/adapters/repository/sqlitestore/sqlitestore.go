// Package sqlitestore keeps the blocklist in an embedded SQLite database.
// It backs local development and tests; the pure-Go driver needs no cgo.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/domain/model"
)

const driverName = "sqlite"

// Store is a repository.Store over database/sql.
type Store struct {
	db    *sql.DB
	table string
}

var _ repository.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithTable overrides the table name. The caller guarantees it is a plain identifier.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// Open opens (creating if needed) the database at path and ensures the table exists.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: empty path")
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, table: "blocklist"}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) quoted() string { return `"` + s.table + `"` }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id     TEXT PRIMARY KEY,
			reason      TEXT,
			block_count INTEGER NOT NULL DEFAULT 1
		)`, s.quoted()))
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// ListUserIDs returns ids in rowid order.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT user_id FROM %s ORDER BY rowid`, s.quoted()))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	return ids, nil
}

// Get returns the record for userID.
func (s *Store) Get(ctx context.Context, userID string) (model.BlockRecord, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT user_id, reason, %s FROM %s WHERE user_id = ?`, repository.CountExpr("block_count"), s.quoted()),
		userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BlockRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return model.BlockRecord{}, fmt.Errorf("sqlite: get: %w", err)
	}
	return rec, nil
}

// Increment inserts with count 1 or bumps the existing count.
func (s *Store) Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.write(ctx, "increment", fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, reason, block_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			block_count = %[2]s + 1,
			reason      = excluded.reason
		RETURNING user_id, reason, block_count`, s.quoted(), repository.CountExpr(s.quoted()+".block_count")), r)
}

// Upsert inserts or replaces the record with count 1.
func (s *Store) Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.write(ctx, "upsert", fmt.Sprintf(`
		INSERT INTO %s (user_id, reason, block_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			block_count = 1,
			reason      = excluded.reason
		RETURNING user_id, reason, block_count`, s.quoted()), r)
}

// write runs an upsert statement. SQLite has no insert marker on RETURNING,
// so the existence probe and the write share one transaction.
func (s *Store) write(ctx context.Context, op, q string, r model.Report) (model.ReportOutcome, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, repository.ErrEmptyUser
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReportOutcome{}, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = ?`, s.quoted()), r.UserID).Scan(&exists)
	if err != nil {
		return model.ReportOutcome{}, fmt.Errorf("sqlite: %s: %w", op, err)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, q, r.UserID, nullString(r.Reason)))
	if err != nil {
		return model.ReportOutcome{}, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return model.ReportOutcome{}, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return model.ReportOutcome{Record: rec, Created: exists == 0}, nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.quoted())).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecord(row *sql.Row) (model.BlockRecord, error) {
	var (
		rec    model.BlockRecord
		reason sql.NullString
	)
	if err := row.Scan(&rec.UserID, &reason, &rec.BlockCount); err != nil {
		return model.BlockRecord{}, err
	}
	if reason.Valid {
		rec.Reason = &reason.String
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
