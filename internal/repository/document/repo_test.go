package document

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/domain/stage"
)

// --- Claim ---

func TestClaimQuery_SQL(t *testing.T) {
	cat := knowledge.Codes
	query, args, err := claimQuery(knowledge.ClaimFilter{
		Stages:           stage.Pending(),
		Category:         &cat,
		Limit:            10,
		Token:            "lease-1",
		Until:            testNow.Add(time.Minute),
		Now:              testNow,
		ApproveThreshold: 70,
		RejectThreshold:  40,
	}).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}

	for _, want := range []string{
		"UPDATE knowledge_documents d SET lease_token = $1, lease_until = $2",
		"FOR UPDATE SKIP LOCKED",
		"WHERE d.id = c.id",
		"RETURNING d.id, d.title",
		"ORDER BY stage_updated_at, id",
		"LIMIT 10",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}
	if strings.Contains(query, "?") {
		t.Errorf("query kept ? placeholders:\n%s", query)
	}
	if args[0] != "lease-1" {
		t.Errorf("first arg = %v, want lease token", args[0])
	}
	if args[len(args)-1] != "codes" {
		t.Errorf("last arg = %v, want category", args[len(args)-1])
	}
}

func TestClaim_ScansDocuments(t *testing.T) {
	repo, s := newTestRepo(t)
	d := testDocument(t)
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) {
		return [][]any{documentRow(t, d)}, nil
	}

	got, err := repo.Claim(context.Background(), knowledge.ClaimFilter{Stages: stage.Pending(), Limit: 5, Now: testNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "doc-1" {
		t.Fatalf("claimed %v", got)
	}
}

// --- Get ---

func TestGet_RoundTrip(t *testing.T) {
	repo, s := newTestRepo(t)
	d := testDocument(t)
	d.SetNormalized("Article 1 - Texte.", knowledge.French, "h1")
	d.SetStageHash(stage.Classified, "in-1")
	d.SetQualityScore(82)
	d.RecordFailure(domain.ReasonProviderUnavailable, "openai: 503")
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) {
		return [][]any{documentRow(t, d)}, nil
	}

	got, err := repo.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.Snapshot(), d.Snapshot()) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got.Snapshot(), d.Snapshot())
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestGet_QueryError(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) { return nil, errors.New("connection reset") }

	_, err := repo.Get(context.Background(), "doc-1")
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

// --- Commit ---

func testChunks() []chunk.Chunk {
	loc, _ := locator.NewPDFText(locator.PDFText{Page: 1})
	return []chunk.Chunk{
		{ID: "c0", DocumentID: "doc-1", Ordinal: 0, Content: "Article 1", TokenCount: 3,
			Strategy: chunk.StrategyArticle, ArticleNumbers: []string{"1"}, End: 9,
			Locator: loc},
		{ID: "c1", DocumentID: "doc-1", Ordinal: 1, Content: "Article 2", TokenCount: 3,
			Strategy: chunk.StrategyArticle, ArticleNumbers: []string{"2"}, Start: 10, End: 19},
	}
}

func TestCommit_WritesEverythingInOneTx(t *testing.T) {
	repo, s := newTestRepo(t)
	d := testDocument(t)
	tr, err := d.Transition(stage.Classified, stage.ActionAdvance, "", testNow)
	if err != nil {
		t.Fatal(err)
	}
	chunks := testChunks()

	err = repo.Commit(context.Background(), knowledge.Commit{
		Document:    d,
		LeaseToken:  "lease-1",
		Transitions: []knowledge.Transition{tr},
		Chunks:      &chunks,
		Vectors: []chunk.Vector{
			{ChunkID: "c0", Provider: "openai", Dimensions: 2, Values: []float32{1, 0}},
			{ChunkID: "c1", Provider: "openai", Dimensions: 2, Values: []float32{0, 1}},
		},
		Centroid: &chunk.Centroid{DocumentID: "doc-1", Provider: "openai", Dimensions: 2, Values: []float32{.5, .5}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Txs != 1 || s.Rollbacks != 0 {
		t.Errorf("txs=%d rollbacks=%d, want 1/0", s.Txs, s.Rollbacks)
	}

	calls := s.Q.Calls()
	wantOrder := []string{
		"UPDATE knowledge_documents",
		"INSERT INTO pipeline_transitions",
		"DELETE FROM knowledge_chunks",
		"INSERT INTO knowledge_chunks",
		"INSERT INTO chunk_embeddings",
		"INSERT INTO document_centroids",
	}
	if len(calls) != len(wantOrder) {
		t.Fatalf("got %d statements, want %d", len(calls), len(wantOrder))
	}
	for i, want := range wantOrder {
		if !strings.HasPrefix(calls[i].SQL, want) {
			t.Errorf("statement %d = %q, want prefix %q", i, calls[i].SQL, want)
		}
	}
	if !strings.Contains(calls[0].SQL, "lease_token = $") {
		t.Errorf("update not guarded by lease: %s", calls[0].SQL)
	}
}

func TestCommit_LeaseLost(t *testing.T) {
	repo, s := newTestRepo(t)
	s.Q.ExecFn = func(sql string, _ []any) (int64, error) {
		if strings.HasPrefix(sql, "UPDATE knowledge_documents") {
			return 0, nil
		}
		return 1, nil
	}
	chunks := testChunks()

	err := repo.Commit(context.Background(), knowledge.Commit{
		Document: testDocument(t), LeaseToken: "stale", Chunks: &chunks,
	})
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if s.Rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", s.Rollbacks)
	}
	if len(s.Q.Matching("knowledge_chunks")) != 0 {
		t.Error("chunks written after lost lease")
	}
}

func TestCommit_RejectsBrokenOrdinals(t *testing.T) {
	repo, _ := newTestRepo(t)
	chunks := testChunks()
	chunks[1].Ordinal = 5

	err := repo.Commit(context.Background(), knowledge.Commit{Document: testDocument(t), Chunks: &chunks})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCommit_NilChunksKeepsChunkSet(t *testing.T) {
	repo, s := newTestRepo(t)

	if err := repo.Commit(context.Background(), knowledge.Commit{Document: testDocument(t)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Q.Matching("knowledge_chunks")) != 0 {
		t.Error("nil chunk set must not touch knowledge_chunks")
	}
}

// --- Mutate ---

func TestMutate_RevokesLease(t *testing.T) {
	repo, s := newTestRepo(t)
	d := testDocument(t)
	s.Q.QueryFn = func(sql string, _ []any) ([][]any, error) {
		if !strings.HasSuffix(sql, "FOR UPDATE") {
			t.Errorf("document not locked: %s", sql)
		}
		return [][]any{documentRow(t, d)}, nil
	}

	err := repo.Mutate(context.Background(), "doc-1", func(d *knowledge.Document) ([]knowledge.Transition, error) {
		d.Reclassify(knowledge.Jurisprudence)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := s.Q.Matching("UPDATE knowledge_documents")
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if !strings.Contains(updates[0].SQL, "lease_until = $") {
		t.Errorf("lease not cleared: %s", updates[0].SQL)
	}
	found := false
	for _, a := range updates[0].Args {
		if a == "jurisprudence" {
			found = true
		}
	}
	if !found {
		t.Errorf("new category not written: %v", updates[0].Args)
	}
}

func TestMutate_FnErrorAborts(t *testing.T) {
	repo, s := newTestRepo(t)
	d := testDocument(t)
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) { return [][]any{documentRow(t, d)}, nil }

	err := repo.Mutate(context.Background(), "doc-1", func(*knowledge.Document) ([]knowledge.Transition, error) {
		return nil, domain.ErrInvalidTransition
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(s.Q.Matching("UPDATE")) != 0 {
		t.Error("document written after fn error")
	}
}

// --- Chunks ---

func TestChunks_Scan(t *testing.T) {
	repo, s := newTestRepo(t)
	want := testChunks()
	s.Q.QueryFn = func(_ string, _ []any) ([][]any, error) {
		var rows [][]any
		for i := range want {
			vals, err := chunkValues(&want[i])
			if err != nil {
				t.Fatal(err)
			}
			rows = append(rows, vals)
		}
		return rows, nil
	}

	got, err := repo.Chunks(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chunks mismatch:\n got %+v\nwant %+v", got, want)
	}
}

// --- StageStats ---

func TestStageStats(t *testing.T) {
	repo, s := newTestRepo(t)
	oldest := testNow.Add(-100 * time.Hour)
	s.Q.QueryFn = func(sql string, args []any) ([][]any, error) {
		if !strings.Contains(sql, "GROUP BY stage") {
			t.Errorf("unexpected query: %s", sql)
		}
		return [][]any{
			{"chunked", int64(3), 7200.0, int64(1), 360000.0, oldest},
			{"approved", int64(10), 36.0, int64(0), 0.0, nil},
		}, nil
	}

	got, err := repo.StageStats(context.Background(), testNow, testNow.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
	c := got[0]
	if c.Stage != stage.Chunked || c.Documents != 3 || c.AvgDwell != 2*time.Hour || c.Stuck != 1 {
		t.Errorf("chunked row = %+v", c)
	}
	if c.StuckAvgDwell != 100*time.Hour || c.OldestStuck == nil || !c.OldestStuck.Equal(oldest) {
		t.Errorf("stuck fields = %+v", c)
	}
	if got[1].OldestStuck != nil {
		t.Errorf("approved oldest stuck = %v, want nil", got[1].OldestStuck)
	}
}
