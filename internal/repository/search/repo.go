// Package search runs pgvector similarity queries over chunk embeddings and
// document centroids, and stores the similarity graph.
package search

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/db/postgres"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	Pool() postgres.Querier
	WithTx(ctx context.Context, fn func(q postgres.Querier) error) error
}

var psql = postgres.Psql

// Repo implements retrieval and graph storage.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// ChunkQuery is a vector search over one provider's chunk embeddings.
type ChunkQuery struct {
	Provider string
	Vector   []float32
	Filters  request.Filters
	Limit    int
	// Uncovered, when set, keeps only chunks that have no vector from this provider.
	Uncovered string
}

// retrievable restricts documents to those served by retrieval.
func retrievable(alias string) sq.And {
	return sq.And{
		sq.Expr(alias + ".is_active"),
		sq.Expr(alias + ".is_approved"),
		sq.Eq{alias + ".stage": string(stage.Approved)},
	}
}

// missingVector keeps chunks with no vector from provider.
func missingVector(provider string) sq.Sqlizer {
	return sq.Expr("NOT EXISTS (SELECT 1 FROM chunk_embeddings x WHERE x.chunk_id = c.id AND x.provider = ?)", provider)
}

func filtered(b sq.SelectBuilder, f request.Filters) sq.SelectBuilder {
	if f.Category != nil {
		b = b.Where(sq.Eq{"d.category": string(*f.Category)})
	}
	if f.Language != nil {
		b = b.Where(sq.Eq{"d.language": string(*f.Language)})
	}
	return b
}

func chunkSearchQuery(q ChunkQuery) sq.SelectBuilder {
	vec := pgvector.NewVector(q.Vector)
	b := psql.Select("c.id", "c.document_id", "d.title", "c.content", "c.article_numbers", "c.locator").
		Column("1 - (e.embedding <=> ?::vector)", vec).
		From("chunk_embeddings e").
		Join("knowledge_chunks c ON c.id = e.chunk_id").
		Join("knowledge_documents d ON d.id = c.document_id").
		Where(sq.Eq{"e.provider": q.Provider, "e.dimensions": len(q.Vector)}).
		Where(retrievable("d"))
	if q.Uncovered != "" {
		b = b.Where(missingVector(q.Uncovered))
	}
	b = filtered(b, q.Filters)
	return b.OrderByClause("e.embedding <=> ?::vector, c.id", vec).Limit(uint64(max(q.Limit, 1)))
}

func fallbackProvidersQuery(provider string, f request.Filters) sq.SelectBuilder {
	b := psql.Select("DISTINCT e.provider").
		From("chunk_embeddings e").
		Join("knowledge_chunks c ON c.id = e.chunk_id").
		Join("knowledge_documents d ON d.id = c.document_id").
		Where(sq.NotEq{"e.provider": provider}).
		Where(retrievable("d")).
		Where(missingVector(provider))
	return filtered(b, f).OrderBy("e.provider")
}

// FallbackProviders lists the other providers holding the only vectors of
// some retrievable chunk, i.e. chunks a search by provider cannot see.
func (r *Repo) FallbackProviders(ctx context.Context, provider string, f request.Filters) ([]string, error) {
	rows, err := postgres.Query(ctx, r.store.Pool(), fallbackProvidersQuery(provider, f))
	if err != nil {
		return nil, fmt.Errorf("fallback providers (%s): %w", provider, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// SearchChunks returns the nearest chunks by cosine similarity, best first.
// Rank carries the position in that ordering.
func (r *Repo) SearchChunks(ctx context.Context, q ChunkQuery) ([]result.Hit, error) {
	rows, err := postgres.Query(ctx, r.store.Pool(), chunkSearchQuery(q))
	if err != nil {
		return nil, fmt.Errorf("search chunks (%s): %w", q.Provider, err)
	}
	defer rows.Close()

	var hits []result.Hit
	for rows.Next() {
		var (
			h   result.Hit
			loc []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Title, &h.Content,
			&h.ArticleNumbers, &loc, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if len(loc) > 0 {
			var l locator.Locator
			if err := json.Unmarshal(loc, &l); err != nil {
				return nil, fmt.Errorf("decode locator of chunk %s: %w", h.ChunkID, err)
			}
			h.Locator = l
		}
		if len(h.ArticleNumbers) == 0 {
			h.ArticleNumbers = nil
		}
		h.Rank = len(hits)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return hits, nil
}

// Relations returns edges between the given documents with at least minStrength.
func (r *Repo) Relations(ctx context.Context, docIDs []string, minStrength float64) ([]similarity.Relation, error) {
	if len(docIDs) < 2 {
		return nil, nil
	}
	q := psql.Select("source_id", "target_id", "strength", "validated").
		From("similarity_relations").
		Where(sq.Eq{"source_id": docIDs, "target_id": docIDs}).
		Where(sq.GtOrEq{"strength": minStrength})
	rows, err := postgres.Query(ctx, r.store.Pool(), q)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	var out []similarity.Relation
	for rows.Next() {
		var rel similarity.Relation
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Strength, &rel.Validated); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// Centroid is an approved document's mean chunk vector.
type Centroid struct {
	DocumentID string
	Category   knowledge.Category
	Language   knowledge.Language
	Vector     []float32
}

// Centroids lists centroids of retrievable documents for provider.
func (r *Repo) Centroids(ctx context.Context, provider string) ([]Centroid, error) {
	q := psql.Select("dc.document_id", "d.category", "d.language", "dc.embedding").
		From("document_centroids dc").
		Join("knowledge_documents d ON d.id = dc.document_id").
		Where(sq.Eq{"dc.provider": provider}).
		Where(retrievable("d")).
		OrderBy("dc.document_id")
	rows, err := postgres.Query(ctx, r.store.Pool(), q)
	if err != nil {
		return nil, fmt.Errorf("load centroids (%s): %w", provider, err)
	}
	defer rows.Close()

	var out []Centroid
	for rows.Next() {
		var (
			c        Centroid
			cat, lng string
			vec      pgvector.Vector
		)
		if err := rows.Scan(&c.DocumentID, &cat, &lng, &vec); err != nil {
			return nil, fmt.Errorf("scan centroid: %w", err)
		}
		c.Category, c.Language, c.Vector = knowledge.Category(cat), knowledge.Language(lng), vec.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// NeighbourQuery looks for documents whose centroid is close to Vector.
type NeighbourQuery struct {
	DocumentID    string
	Provider      string
	Vector        []float32
	Category      *knowledge.Category
	Language      *knowledge.Language
	MinSimilarity float64
	Limit         int
}

// Neighbour is a candidate similarity edge target.
type Neighbour struct {
	DocumentID string
	Similarity float64
}

func neighbourQuery(q NeighbourQuery) sq.SelectBuilder {
	vec := pgvector.NewVector(q.Vector)
	sim := sq.Expr("1 - (dc.embedding <=> ?::vector)", vec)
	b := psql.Select("dc.document_id").
		Column(sim).
		From("document_centroids dc").
		Join("knowledge_documents d ON d.id = dc.document_id").
		Where(sq.Eq{"dc.provider": q.Provider, "dc.dimensions": len(q.Vector)}).
		Where(sq.NotEq{"dc.document_id": q.DocumentID}).
		Where(retrievable("d")).
		Where(sq.Expr("1 - (dc.embedding <=> ?::vector) >= ?", vec, q.MinSimilarity))
	if q.Category != nil {
		b = b.Where(sq.Eq{"d.category": string(*q.Category)})
	}
	if q.Language != nil {
		b = b.Where(sq.Eq{"d.language": string(*q.Language)})
	}
	return b.OrderByClause("dc.embedding <=> ?::vector, dc.document_id", vec).Limit(uint64(max(q.Limit, 1)))
}

// Neighbours returns the closest documents to q.Vector, best first.
func (r *Repo) Neighbours(ctx context.Context, q NeighbourQuery) ([]Neighbour, error) {
	rows, err := postgres.Query(ctx, r.store.Pool(), neighbourQuery(q))
	if err != nil {
		return nil, fmt.Errorf("neighbours of %s: %w", q.DocumentID, err)
	}
	defer rows.Close()

	var out []Neighbour
	for rows.Next() {
		var n Neighbour
		if err := rows.Scan(&n.DocumentID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan neighbour: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// UpsertRelations writes relations in both directions in one transaction.
// A stronger existing edge is kept; validated edges are never weakened.
func (r *Repo) UpsertRelations(ctx context.Context, rels []similarity.Relation) (int, error) {
	mirrored := similarity.Mirrored(rels)
	if len(mirrored) == 0 {
		return 0, nil
	}
	b := psql.Insert("similarity_relations").Columns("source_id", "target_id", "strength", "validated")
	for _, rel := range mirrored {
		b = b.Values(rel.SourceID, rel.TargetID, rel.Strength, rel.Validated)
	}
	b = b.Suffix("ON CONFLICT (source_id, target_id) DO UPDATE SET " +
		"strength = GREATEST(similarity_relations.strength, EXCLUDED.strength), " +
		"validated = similarity_relations.validated OR EXCLUDED.validated, updated_at = now()")

	var n int64
	err := r.store.WithTx(ctx, func(q postgres.Querier) error {
		var err error
		n, err = postgres.Exec(ctx, q, b)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upsert relations: %w", err)
	}
	return int(n), nil
}
