package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/kailas-cloud/lexdex/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migration lock id, arbitrary but fixed
const migrationLock = 724301

// Migration is one embedded SQL file.
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded migrations sorted by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := fs.ReadFile(migrationFS, "migrations/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction, under an
// advisory lock so concurrent instances do not race. It returns the applied versions.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	ms, err := Migrations()
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &db.Error{Op: db.OpBegin, Err: err}
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLock); err != nil {
		return nil, &db.Error{Op: db.OpExec, Err: err}
	}
	defer func() { _, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLock) }()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version text PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, &db.Error{Op: db.OpExec, Err: err}
	}

	var applied []string
	for _, m := range ms {
		var done bool
		if err := conn.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version,
		).Scan(&done); err != nil {
			return applied, &db.Error{Op: db.OpQuery, Err: err}
		}
		if done {
			continue
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return applied, &db.Error{Op: db.OpBegin, Err: err}
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("migration %s: %w", m.Version, &db.Error{Op: db.OpExec, Err: err})
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			_ = tx.Rollback(ctx)
			return applied, &db.Error{Op: db.OpExec, Err: err}
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, &db.Error{Op: db.OpCommit, Err: err}
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}
