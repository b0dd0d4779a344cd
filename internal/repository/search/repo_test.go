package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
)

// --- SearchChunks ---

func TestChunkSearchQuery_SQL(t *testing.T) {
	cat := knowledge.Jurisprudence
	lang := knowledge.Arabic
	query, args, err := chunkSearchQuery(ChunkQuery{
		Provider: "openai",
		Vector:   []float32{0.1, 0.2, 0.3},
		Filters:  request.Filters{Category: &cat, Language: &lang},
		Limit:    40,
	}).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	for _, want := range []string{
		"1 - (e.embedding <=> $1::vector)",
		"JOIN knowledge_chunks c ON c.id = e.chunk_id",
		"d.is_active AND d.is_approved",
		"ORDER BY e.embedding <=> $",
		"LIMIT 40",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}
	for _, want := range []any{"openai", 3, "approved", "jurisprudence", "ar"} {
		if !hasArg(args, want) {
			t.Errorf("args %v missing %v", args, want)
		}
	}
}

func TestSearchChunks_ScansAndRanks(t *testing.T) {
	repo, s := newTestRepo(t)
	loc, _ := locator.NewHTML(locator.HTML{URL: "https://juricaf.org/a", Anchor: "art5"})
	rawLoc, _ := json.Marshal(loc)
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) {
		return [][]any{
			{"c1", "d1", "Arrêt 12", "texte un", []string{"5"}, rawLoc, 0.91},
			{"c2", "d2", "Arrêt 13", "texte deux", []string{}, nil, 0.72},
		}, nil
	}

	hits, err := repo.SearchChunks(context.Background(), ChunkQuery{Provider: "openai", Vector: []float32{1}, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].Rank != 0 || hits[1].Rank != 1 {
		t.Errorf("ranks = %d,%d", hits[0].Rank, hits[1].Rank)
	}
	if h, ok := hits[0].Locator.HTML(); !ok || h.Anchor != "art5" {
		t.Errorf("locator = %+v", hits[0].Locator)
	}
	if !hits[1].Locator.IsZero() || hits[1].ArticleNumbers != nil {
		t.Errorf("second hit = %+v", hits[1])
	}
}

func TestSearchChunks_QueryError(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.QueryFn = func(string, []any) ([][]any, error) { return nil, errors.New("relation does not exist") }

	_, err := repo.SearchChunks(context.Background(), ChunkQuery{Provider: "openai", Vector: []float32{1}})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpQuery {
		t.Fatalf("expected query db.Error, got %v", err)
	}
}

func TestChunkSearchQuery_Uncovered(t *testing.T) {
	query, args, err := chunkSearchQuery(ChunkQuery{
		Provider:  "gemini",
		Vector:    []float32{0.1, 0.2},
		Limit:     10,
		Uncovered: "openai",
	}).ToSql()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "NOT EXISTS (SELECT 1 FROM chunk_embeddings x WHERE x.chunk_id = c.id AND x.provider = $") {
		t.Errorf("query does not exclude covered chunks:\n%s", query)
	}
	if !hasArg(args, "gemini") || !hasArg(args, "openai") {
		t.Errorf("args %v missing providers", args)
	}

	query, _, err = chunkSearchQuery(ChunkQuery{Provider: "openai", Vector: []float32{1}}).ToSql()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(query, "NOT EXISTS") {
		t.Errorf("plain search must not filter coverage:\n%s", query)
	}
}

func TestFallbackProviders(t *testing.T) {
	repo, s := newTestRepo(t)
	lang := knowledge.French
	s.Q.QueryFn = func(sql string, args []any) ([][]any, error) {
		for _, want := range []string{"SELECT DISTINCT e.provider", "e.provider <> $", "NOT EXISTS", "d.is_approved"} {
			if !strings.Contains(sql, want) {
				t.Errorf("query missing %q:\n%s", want, sql)
			}
		}
		if !hasArg(args, "openai") || !hasArg(args, "fr") {
			t.Errorf("args = %v", args)
		}
		return [][]any{{"gemini"}}, nil
	}

	got, err := repo.FallbackProviders(context.Background(), "openai", request.Filters{Language: &lang})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "gemini" {
		t.Errorf("providers = %v, want [gemini]", got)
	}
}

func TestFallbackProviders_QueryError(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.QueryFn = func(string, []any) ([][]any, error) { return nil, errors.New("boom") }

	if _, err := repo.FallbackProviders(context.Background(), "openai", request.Filters{}); err == nil {
		t.Fatal("expected error")
	}
}

// --- Relations ---

func TestRelations_SkipsSingleDocument(t *testing.T) {
	repo, s := newTestRepo(t)

	rels, err := repo.Relations(context.Background(), []string{"d1"}, 0.7)
	if err != nil || rels != nil {
		t.Fatalf("got %v, %v", rels, err)
	}
	if len(s.Q.Calls()) != 0 {
		t.Error("query issued for a single document")
	}
}

func TestRelations(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.QueryFn = func(sql string, args []any) ([][]any, error) {
		if !strings.Contains(sql, "strength >= $") || !hasArg(args, 0.7) {
			t.Errorf("min strength not applied: %s %v", sql, args)
		}
		return [][]any{{"d1", "d2", 0.8, true}}, nil
	}

	rels, err := repo.Relations(context.Background(), []string{"d1", "d2"}, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rels) != 1 || rels[0].Strength != 0.8 || !rels[0].Validated {
		t.Errorf("relations = %+v", rels)
	}
}

// --- Centroids / Neighbours ---

func TestCentroids_ScansVector(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.QueryFn = func(string, []any) ([][]any, error) {
		return [][]any{{"d1", "codes", "fr", "[0.5,0.25]"}}, nil
	}

	got, err := repo.Centroids(context.Background(), "openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Category != knowledge.Codes || len(got[0].Vector) != 2 || got[0].Vector[1] != 0.25 {
		t.Errorf("centroids = %+v", got)
	}
}

func TestNeighbourQuery_SQL(t *testing.T) {
	cat := knowledge.Codes
	query, args, err := neighbourQuery(NeighbourQuery{
		DocumentID: "d1", Provider: "gemini", Vector: []float32{1, 0},
		Category: &cat, MinSimilarity: 0.85, Limit: 10,
	}).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(query, "dc.document_id <> $") {
		t.Errorf("self not excluded:\n%s", query)
	}
	if !strings.Contains(query, "LIMIT 10") {
		t.Errorf("limit missing:\n%s", query)
	}
	for _, want := range []any{"d1", "gemini", 0.85, "codes"} {
		if !hasArg(args, want) {
			t.Errorf("args %v missing %v", args, want)
		}
	}
	if hasArg(args, "fr") {
		t.Error("language filter applied without being requested")
	}
}

// --- UpsertRelations ---

func TestUpsertRelations_WritesMirrored(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.ExecFn = func(_ string, args []any) (int64, error) { return int64(len(args) / 4), nil }

	n, err := repo.UpsertRelations(context.Background(), []similarity.Relation{
		{SourceID: "d1", TargetID: "d2", Strength: 0.9},
		{SourceID: "d2", TargetID: "d3", Strength: 0.86},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("rows = %d, want 4 (both directions)", n)
	}
	calls := s.Q.Matching("INSERT INTO similarity_relations")
	if len(calls) != 1 || !strings.Contains(calls[0].SQL, "GREATEST") {
		t.Fatalf("calls = %+v", calls)
	}
	if s.Txs != 1 {
		t.Errorf("txs = %d", s.Txs)
	}
}

func TestUpsertRelations_Empty(t *testing.T) {
	repo, s := newTestRepo(t)
	if n, err := repo.UpsertRelations(context.Background(), nil); n != 0 || err != nil {
		t.Fatalf("got %d, %v", n, err)
	}
	if len(s.Q.Calls()) != 0 {
		t.Error("statement issued for no relations")
	}
}
