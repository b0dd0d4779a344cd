// Package postgres holds the PostgreSQL + pgvector connection pool, transactions and migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/lexdex/internal/db"
)

var _ db.Pinger = (*Store)(nil)

// Psql is the statement builder for PostgreSQL placeholders.
var Psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Config holds connection parameters for the Postgres store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Querier is the part of pgx shared by the pool and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a connection pool. Connections are opened lazily.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pcfg.ConnConfig.RuntimeParams["application_name"] = "lexdex"

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the pool for repositories that run plain queries.
func (s *Store) Pool() Querier { return s.pool }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady retries Ping with backoff until it succeeds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.Do(
		func() error { return s.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("timeout waiting for postgres: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &db.Error{Op: db.OpBegin, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &db.Error{Op: db.OpCommit, Err: err}
	}
	return nil
}

// Exec runs a built statement.
func Exec(ctx context.Context, q Querier, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, &db.Error{Op: db.OpExec, Err: err}
	}
	return tag.RowsAffected(), nil
}

// Query runs a built query.
func Query(ctx context.Context, q Querier, b sq.Sqlizer) (pgx.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return rows, nil
}

// NoRows maps pgx.ErrNoRows to db.ErrNoRows and wraps other errors.
func NoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNoRows
	}
	return &db.Error{Op: db.OpQuery, Err: err}
}
