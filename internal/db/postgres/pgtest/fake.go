// Package pgtest provides an in-memory Querier for repository tests.
package pgtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/lexdex/internal/db/postgres"
)

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

// Querier records statements and answers them through the optional hooks.
// Without hooks Exec affects one row and queries return no rows.
type Querier struct {
	ExecFn  func(sql string, args []any) (int64, error)
	QueryFn func(sql string, args []any) ([][]any, error)

	mu    sync.Mutex
	calls []Call
}

var _ postgres.Querier = (*Querier)(nil)

// Exec implements postgres.Querier.
func (q *Querier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.record(sql, args)
	n := int64(1)
	if q.ExecFn != nil {
		var err error
		if n, err = q.ExecFn(sql, args); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n)), nil
}

// Query implements postgres.Querier.
func (q *Querier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.record(sql, args)
	var data [][]any
	if q.QueryFn != nil {
		var err error
		if data, err = q.QueryFn(sql, args); err != nil {
			return nil, err
		}
	}
	return &Rows{data: data, pos: -1}, nil
}

// QueryRow implements postgres.Querier.
func (q *Querier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return errRow{err}
	}
	r := rows.(*Rows)
	if !r.Next() {
		return errRow{pgx.ErrNoRows}
	}
	return r
}

func (q *Querier) record(sql string, args []any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, Call{SQL: sql, Args: args})
}

// Calls returns every recorded statement in order.
func (q *Querier) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Matching returns recorded statements whose SQL contains fragment.
func (q *Querier) Matching(fragment string) []Call {
	var out []Call
	for _, c := range q.Calls() {
		if strings.Contains(c.SQL, fragment) {
			out = append(out, c)
		}
	}
	return out
}

// Store is a fake postgres store. Transactions run on the same Querier;
// Rollbacks counts transactions whose fn failed.
type Store struct {
	Q         *Querier
	Txs       int
	Rollbacks int
}

// NewStore creates a fake store around a fresh Querier.
func NewStore() *Store {
	return &Store{Q: &Querier{}}
}

// Pool returns the fake querier.
func (s *Store) Pool() postgres.Querier { return s.Q }

// WithTx runs fn against the fake querier.
func (s *Store) WithTx(_ context.Context, fn func(q postgres.Querier) error) error {
	s.Txs++
	if err := fn(s.Q); err != nil {
		s.Rollbacks++
		return err
	}
	return nil
}

// Rows serves preset values through pgx.Rows.
type Rows struct {
	data [][]any
	pos  int
	err  error
}

var _ pgx.Rows = (*Rows)(nil)

// Close implements pgx.Rows.
func (r *Rows) Close() {}

// Err implements pgx.Rows.
func (r *Rows) Err() error { return r.err }

// CommandTag implements pgx.Rows.
func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

// FieldDescriptions implements pgx.Rows.
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

// Next implements pgx.Rows.
func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

// Values implements pgx.Rows.
func (r *Rows) Values() ([]any, error) { return r.data[r.pos], nil }

// RawValues implements pgx.Rows.
func (r *Rows) RawValues() [][]byte { return nil }

// Conn implements pgx.Rows.
func (r *Rows) Conn() *pgx.Conn { return nil }

// Scan assigns the current row to dest pointers, converting where the
// Go types allow it. nil values zero the destination.
func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return pgx.ErrNoRows
	}
	row := r.data[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("pgtest: scan %d destinations from %d values", len(dest), len(row))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("pgtest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src any) error {
	if s, ok := dest.(interface{ Scan(src any) error }); ok {
		return s.Scan(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case target.Kind() == reflect.Pointer:
		elem := reflect.New(target.Type().Elem())
		if err := assign(elem.Interface(), src); err != nil {
			return err
		}
		target.Set(elem)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", src, target.Type())
	}
	return nil
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }
