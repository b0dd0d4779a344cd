// Package document persists knowledge documents, their chunks, vectors and
// stage history in PostgreSQL.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/db/postgres"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// store is the consumer interface for the Postgres store (ISP).
type store interface {
	Pool() postgres.Querier
	WithTx(ctx context.Context, fn func(q postgres.Querier) error) error
}

var psql = postgres.Psql

// Repo implements the pipeline's document storage.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Create inserts a new document.
func (r *Repo) Create(ctx context.Context, d *knowledge.Document) error {
	vals, err := documentValues(d)
	if err != nil {
		return err
	}
	q := psql.Insert(documentsTable).Columns(documentColumns...).Values(vals...)
	if _, err := postgres.Exec(ctx, r.store.Pool(), q); err != nil {
		return fmt.Errorf("insert document %s: %w", d.ID(), err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (*knowledge.Document, error) {
	return r.get(ctx, r.store.Pool(), id, false)
}

func (r *Repo) get(ctx context.Context, q postgres.Querier, id string, lock bool) (*knowledge.Document, error) {
	b := psql.Select(documentColumns...).From(documentsTable).Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := scanDocument(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(postgres.NoRows(err), db.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", id, postgres.NoRows(err))
	}
	return d, nil
}

// claimQuery builds the lease claim. Rows locked by another claimer are
// skipped, so concurrent batch runs never receive the same document.
func claimQuery(f knowledge.ClaimFilter) sq.UpdateBuilder {
	stages := make([]string, len(f.Stages))
	for i, st := range f.Stages {
		stages[i] = string(st)
	}

	// плейсхолдеры подзапроса перенумерует внешний билдер
	sub := sq.Select("id").From(documentsTable).
		Where(sq.Eq{"stage": stages}).
		Where("is_active").
		Where(sq.Or{sq.Eq{"lease_until": nil}, sq.Lt{"lease_until": f.Now}}).
		Where(sq.Or{
			sq.NotEq{"stage": string(stage.QualityScored)},
			sq.And{
				sq.Expr("NOT needs_review"),
				sq.Or{sq.GtOrEq{"quality_score": f.ApproveThreshold}, sq.Lt{"quality_score": f.RejectThreshold}},
			},
		})
	if f.Category != nil {
		sub = sub.Where(sq.Eq{"category": string(*f.Category)})
	}
	if len(f.Exclude) > 0 {
		sub = sub.Where(sq.NotEq{"id": f.Exclude})
	}
	sub = sub.OrderBy("stage_updated_at", "id").Limit(uint64(max(f.Limit, 1))).Suffix("FOR UPDATE SKIP LOCKED")

	returning := make([]string, len(documentColumns))
	for i, c := range documentColumns {
		returning[i] = "d." + c
	}
	return psql.Update(documentsTable+" d").
		Set("lease_token", f.Token).
		Set("lease_until", f.Until).
		FromSelect(sub, "c").
		Where("d.id = c.id").
		Suffix("RETURNING " + strings.Join(returning, ", "))
}

// Claim leases up to f.Limit documents in f.Stages.
func (r *Repo) Claim(ctx context.Context, f knowledge.ClaimFilter) ([]*knowledge.Document, error) {
	rows, err := postgres.Query(ctx, r.store.Pool(), claimQuery(f))
	if err != nil {
		return nil, fmt.Errorf("claim documents: %w", err)
	}
	defer rows.Close()

	var out []*knowledge.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// Release drops a lease held with token.
func (r *Repo) Release(ctx context.Context, id, token string) error {
	q := psql.Update(documentsTable).
		Set("lease_token", nil).
		Set("lease_until", nil).
		Where(sq.Eq{"id": id, "lease_token": token})
	if _, err := postgres.Exec(ctx, r.store.Pool(), q); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}

// Commit stores a stage result in one transaction. With a lease token the
// update only applies while the lease is still held; otherwise db.ErrConflict.
func (r *Repo) Commit(ctx context.Context, c knowledge.Commit) error {
	err := r.store.WithTx(ctx, func(q postgres.Querier) error {
		if err := r.update(ctx, q, c.Document, c.LeaseToken, true); err != nil {
			return err
		}
		if err := insertTransitions(ctx, q, c.Transitions); err != nil {
			return err
		}
		if c.Chunks != nil {
			if err := replaceChunks(ctx, q, c.Document.ID(), *c.Chunks); err != nil {
				return err
			}
		}
		if err := upsertVectors(ctx, q, c.Vectors); err != nil {
			return err
		}
		if c.Centroid != nil {
			return upsertCentroid(ctx, q, *c.Centroid)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit document %s: %w", c.Document.ID(), err)
	}
	return nil
}

// Mutate loads a document under a row lock, applies fn and stores the result
// with its transitions. Any pipeline lease on the document is revoked.
func (r *Repo) Mutate(
	ctx context.Context, id string, fn func(d *knowledge.Document) ([]knowledge.Transition, error),
) error {
	return r.store.WithTx(ctx, func(q postgres.Querier) error {
		d, err := r.get(ctx, q, id, true)
		if err != nil {
			return err
		}
		trs, err := fn(d)
		if err != nil {
			return err
		}
		if err := r.update(ctx, q, d, "", false); err != nil {
			return err
		}
		return insertTransitions(ctx, q, trs)
	})
}

func (r *Repo) update(ctx context.Context, q postgres.Querier, d *knowledge.Document, token string, keepLease bool) error {
	vals, err := documentValues(d)
	if err != nil {
		return err
	}
	b := psql.Update(documentsTable).Set("updated_at", sq.Expr("now()"))
	for i, col := range documentColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		b = b.Set(col, vals[i])
	}
	b = b.Where(sq.Eq{"id": d.ID()})
	switch {
	case token != "":
		b = b.Where(sq.Eq{"lease_token": token})
	case !keepLease:
		b = b.Set("lease_token", nil).Set("lease_until", nil)
	}
	n, err := postgres.Exec(ctx, q, b)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s lease lost: %w", d.ID(), db.ErrConflict)
	}
	return nil
}

func insertTransitions(ctx context.Context, q postgres.Querier, trs []knowledge.Transition) error {
	if len(trs) == 0 {
		return nil
	}
	b := psql.Insert("pipeline_transitions").
		Columns("document_id", "from_stage", "to_stage", "action", "reason", "content_hash", "created_at")
	for _, t := range trs {
		b = b.Values(t.DocumentID, string(t.From), string(t.To), string(t.Action), string(t.Reason), t.ContentHash, t.At)
	}
	if _, err := postgres.Exec(ctx, q, b); err != nil {
		return fmt.Errorf("insert transitions: %w", err)
	}
	return nil
}

// replaceChunks swaps the whole chunk set; embeddings cascade with the old chunks.
func replaceChunks(ctx context.Context, q postgres.Querier, docID string, chunks []chunk.Chunk) error {
	if err := chunk.CheckOrdinals(chunks); err != nil {
		return err
	}
	if _, err := postgres.Exec(ctx, q, psql.Delete("knowledge_chunks").Where(sq.Eq{"document_id": docID})); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	b := psql.Insert("knowledge_chunks").Columns(chunkColumns...)
	for i := range chunks {
		vals, err := chunkValues(&chunks[i])
		if err != nil {
			return err
		}
		b = b.Values(vals...)
	}
	if _, err := postgres.Exec(ctx, q, b); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func upsertVectors(ctx context.Context, q postgres.Querier, vectors []chunk.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	b := psql.Insert("chunk_embeddings").Columns("chunk_id", "provider", "dimensions", "embedding")
	for _, v := range vectors {
		b = b.Values(v.ChunkID, v.Provider, v.Dimensions, pgvector.NewVector(v.Values))
	}
	b = b.Suffix("ON CONFLICT (chunk_id, provider) DO UPDATE SET " +
		"dimensions = EXCLUDED.dimensions, embedding = EXCLUDED.embedding, created_at = now()")
	if _, err := postgres.Exec(ctx, q, b); err != nil {
		return fmt.Errorf("upsert chunk embeddings: %w", err)
	}
	return nil
}

func upsertCentroid(ctx context.Context, q postgres.Querier, c chunk.Centroid) error {
	b := psql.Insert("document_centroids").
		Columns("document_id", "provider", "dimensions", "embedding").
		Values(c.DocumentID, c.Provider, c.Dimensions, pgvector.NewVector(c.Values)).
		Suffix("ON CONFLICT (document_id, provider) DO UPDATE SET " +
			"dimensions = EXCLUDED.dimensions, embedding = EXCLUDED.embedding, updated_at = now()")
	if _, err := postgres.Exec(ctx, q, b); err != nil {
		return fmt.Errorf("upsert centroid: %w", err)
	}
	return nil
}

// Chunks returns a document's chunks in ordinal order.
func (r *Repo) Chunks(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	q := psql.Select(chunkColumns...).From("knowledge_chunks").
		Where(sq.Eq{"document_id": docID}).OrderBy("ordinal")
	rows, err := postgres.Query(ctx, r.store.Pool(), q)
	if err != nil {
		return nil, fmt.Errorf("list chunks of %s: %w", docID, err)
	}
	defer rows.Close()

	var out []chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// Transitions returns a document's stage history, oldest first.
func (r *Repo) Transitions(ctx context.Context, docID string) ([]knowledge.Transition, error) {
	q := psql.Select("from_stage", "to_stage", "action", "reason", "content_hash", "created_at").
		From("pipeline_transitions").Where(sq.Eq{"document_id": docID}).OrderBy("created_at", "id")
	rows, err := postgres.Query(ctx, r.store.Pool(), q)
	if err != nil {
		return nil, fmt.Errorf("list transitions of %s: %w", docID, err)
	}
	defer rows.Close()

	var out []knowledge.Transition
	for rows.Next() {
		var from, to, action, reason string
		t := knowledge.Transition{DocumentID: docID}
		if err := rows.Scan(&from, &to, &action, &reason, &t.ContentHash, &t.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From, t.To, t.Action, t.Reason = stage.Stage(from), stage.Stage(to), stage.Action(action), domain.ReasonCode(reason)
		t.At = t.At.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

func statsQuery(now, stuckBefore time.Time) sq.SelectBuilder {
	return psql.Select("stage", "count(*)").
		Column("coalesce(avg(extract(epoch FROM (?::timestamptz - stage_updated_at))), 0)", now).
		Column("count(*) FILTER (WHERE stage_updated_at < ?)", stuckBefore).
		Column("coalesce(avg(extract(epoch FROM (?::timestamptz - stage_updated_at)))"+
			" FILTER (WHERE stage_updated_at < ?), 0)", now, stuckBefore).
		Column("min(stage_updated_at) FILTER (WHERE stage_updated_at < ?)", stuckBefore).
		From(documentsTable).
		Where("is_active").
		GroupBy("stage")
}

// StageStats aggregates active documents per stage. Documents whose stage
// changed before stuckBefore count as stuck.
func (r *Repo) StageStats(ctx context.Context, now, stuckBefore time.Time) ([]knowledge.StageStat, error) {
	rows, err := postgres.Query(ctx, r.store.Pool(), statsQuery(now, stuckBefore))
	if err != nil {
		return nil, fmt.Errorf("stage stats: %w", err)
	}
	defer rows.Close()

	var out []knowledge.StageStat
	for rows.Next() {
		var row statRow
		if err := rows.Scan(&row.stage, &row.documents, &row.avgDwellSec,
			&row.stuck, &row.stuckAvgSec, &row.oldestStuck); err != nil {
			return nil, fmt.Errorf("scan stage stats: %w", err)
		}
		out = append(out, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}
