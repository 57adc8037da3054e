// Package gormstore keeps the blocklist in Postgres through gorm.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/adapters/repository/pgxstore"
	"github.com/okian/sift/internal/domain/model"
)

// blockRow maps one blocklist row.
type blockRow struct {
	UserID     string  `gorm:"column:user_id;primaryKey"`
	Reason     *string `gorm:"column:reason"`
	BlockCount int     `gorm:"column:block_count;not null;default:1"`
}

func (r blockRow) record() model.BlockRecord {
	return model.BlockRecord{UserID: r.UserID, Reason: r.Reason, BlockCount: r.BlockCount}
}

// Store is a repository.Store over gorm.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
	table string
}

var _ repository.Store = (*Store)(nil)

type options struct {
	table       string
	password    string
	maxConns    int
	autoMigrate bool
	logger      gormlogger.Interface
}

// Option configures Open.
type Option func(*options)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

// WithPassword sets the password when the DSN carries none.
func WithPassword(p string) Option {
	return func(o *options) { o.password = p }
}

// WithMaxConns caps open connections.
func WithMaxConns(n int) Option {
	return func(o *options) { o.maxConns = n }
}

// WithAutoMigrate creates or updates the table on Open.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.autoMigrate = enabled }
}

// WithLogger replaces the gorm logger (silent by default).
func WithLogger(l gormlogger.Interface) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open connects to dsn. The pgx connection config is parsed first so the
// password can be supplied separately and handed to gorm through pgx/stdlib.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := options{
		table:  "blocklist",
		logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	for _, opt := range opts {
		opt(&o)
	}

	connCfg, err := pgx.ParseConfig(pgxstore.NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("gorm: parse config: %w", err)
	}
	if o.password != "" && connCfg.Password == "" {
		connCfg.Password = o.password
	}

	sqlDB := stdlib.OpenDB(*connCfg)
	if o.maxConns > 0 {
		sqlDB.SetMaxOpenConns(o.maxConns)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: o.logger})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gorm: open: %w", err)
	}

	s := &Store{db: db, sqlDB: sqlDB, table: o.table}
	if err := s.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if o.autoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Migrate creates or updates the blocklist table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.tx(ctx).AutoMigrate(&blockRow{}); err != nil {
		return fmt.Errorf("gorm: migrate: %w", err)
	}
	return nil
}

// ListUserIDs returns every user_id in table scan order.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.tx(ctx).Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("gorm: list: %w", err)
	}
	return ids, nil
}

// Get returns the record for userID.
func (s *Store) Get(ctx context.Context, userID string) (model.BlockRecord, error) {
	var row blockRow
	err := s.tx(ctx).
		Select("user_id, reason, " + repository.CountExpr("block_count") + " AS block_count").
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.BlockRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return model.BlockRecord{}, fmt.Errorf("gorm: get: %w", err)
	}
	return row.record(), nil
}

// Increment inserts with count 1 or bumps the existing count.
func (s *Store) Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	prev := clause.Column{Table: s.table, Name: "block_count"}
	return s.write(ctx, "increment", clause.Set{
		{Column: clause.Column{Name: "block_count"}, Value: gorm.Expr(repository.CountExpr("?")+" + 1", prev, prev, prev)},
		{Column: clause.Column{Name: "reason"}, Value: gorm.Expr("EXCLUDED.reason")},
	}, r)
}

// Upsert inserts or replaces the record with count 1.
func (s *Store) Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.write(ctx, "upsert", clause.AssignmentColumns([]string{"reason", "block_count"}), r)
}

// write inserts r with count 1, applying updates on conflict. The existence
// probe and the write share one transaction; a concurrent insert that lands
// between them shows up as a count above 1.
func (s *Store) write(ctx context.Context, op string, updates clause.Set, r model.Report) (model.ReportOutcome, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, repository.ErrEmptyUser
	}
	var out model.ReportOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Table(s.table).Where("user_id = ?", r.UserID).Count(&existing).Error; err != nil {
			return err
		}

		row := blockRow{UserID: r.UserID, Reason: r.Reason, BlockCount: 1}
		err := tx.Table(s.table).Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: updates,
			},
			clause.Returning{},
		).Create(&row).Error
		if err != nil {
			return err
		}
		out = model.ReportOutcome{Record: row.record(), Created: existing == 0 && row.BlockCount == 1}
		return nil
	})
	if err != nil {
		return model.ReportOutcome{}, fmt.Errorf("gorm: %s: %w", op, err)
	}
	return out, nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.tx(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("gorm: count: %w", err)
	}
	return int(n), nil
}

// Ping checks the underlying connection pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("gorm: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
