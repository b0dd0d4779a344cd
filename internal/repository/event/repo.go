// Package event stores the query, answer-check and feedback events the
// drift monitor aggregates.
package event

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/db/postgres"
	"github.com/kailas-cloud/lexdex/internal/domain/drift"
)

// store is the consumer interface for the Postgres store (ISP).
type store interface {
	Pool() postgres.Querier
}

var psql = postgres.Psql

// Repo records and aggregates drift events.
type Repo struct {
	store store
}

// New creates an event repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// RecordQuery stores a retrieval event.
func (r *Repo) RecordQuery(ctx context.Context, e drift.QueryEvent) error {
	q := psql.Insert("query_events").
		Columns("top_similarity", "results", "abstained", "created_at").
		Values(e.MeanSimilarity, e.Results, e.Abstained, e.At)
	if _, err := postgres.Exec(ctx, r.store.Pool(), q); err != nil {
		return fmt.Errorf("record query event: %w", err)
	}
	return nil
}

// RecordAnswerCheck stores a citation validation outcome.
func (r *Repo) RecordAnswerCheck(ctx context.Context, c drift.AnswerCheck) error {
	q := psql.Insert("answer_checks").
		Columns("references_total", "unverified", "flagged", "created_at").
		Values(c.References, c.Unverified, c.Flagged, c.At)
	if _, err := postgres.Exec(ctx, r.store.Pool(), q); err != nil {
		return fmt.Errorf("record answer check: %w", err)
	}
	return nil
}

// RecordFeedback stores a user rating.
func (r *Repo) RecordFeedback(ctx context.Context, f drift.Feedback) error {
	q := psql.Insert("feedback").
		Columns("rating", "comment", "created_at").
		Values(f.Rating, f.Comment, f.At)
	if _, err := postgres.Exec(ctx, r.store.Pool(), q); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

func inWindow(w drift.Window) sq.And {
	return sq.And{sq.GtOrEq{"created_at": w.From}, sq.Lt{"created_at": w.To}}
}

// WindowStats aggregates the events created within w.
func (r *Repo) WindowStats(ctx context.Context, w drift.Window) (drift.WindowStats, error) {
	st := drift.WindowStats{Window: w}
	aggregates := []struct {
		b    sq.SelectBuilder
		dest []any
	}{
		{
			psql.Select("count(*)",
				"coalesce(sum(top_similarity) FILTER (WHERE NOT abstained), 0)",
				"coalesce(sum(top_similarity * top_similarity) FILTER (WHERE NOT abstained), 0)",
				"count(*) FILTER (WHERE abstained)").
				From("query_events").Where(inWindow(w)),
			[]any{&st.Queries, &st.SimilaritySum, &st.SimilaritySumSq, &st.Abstained},
		},
		{
			psql.Select("count(*)", "count(*) FILTER (WHERE flagged)").
				From("answer_checks").Where(inWindow(w)),
			[]any{&st.Answers, &st.Flagged},
		},
		{
			psql.Select("count(*)", "count(*) FILTER (WHERE rating >= 4)").
				From("feedback").Where(inWindow(w)),
			[]any{&st.Feedback, &st.Satisfied},
		},
	}
	for _, a := range aggregates {
		query, args, err := a.b.ToSql()
		if err != nil {
			return drift.WindowStats{}, fmt.Errorf("build window query: %w", err)
		}
		if err := r.store.Pool().QueryRow(ctx, query, args...).Scan(a.dest...); err != nil {
			return drift.WindowStats{}, fmt.Errorf("window stats: %w", &db.Error{Op: db.OpQuery, Err: err})
		}
	}
	return st, nil
}
