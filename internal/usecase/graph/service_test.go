package graph

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
)

// --- Mocks ---

type mockRepo struct {
	centroids  []searchrepo.Centroid
	neighbours map[string][]searchrepo.Neighbour
	queries    []searchrepo.NeighbourQuery
	upserted   []similarity.Relation
	err        error
	upsertErr  error
}

func (m *mockRepo) Centroids(_ context.Context, _ string) ([]searchrepo.Centroid, error) {
	return m.centroids, m.err
}

func (m *mockRepo) Neighbours(_ context.Context, q searchrepo.NeighbourQuery) ([]searchrepo.Neighbour, error) {
	m.queries = append(m.queries, q)
	return m.neighbours[q.DocumentID], nil
}

func (m *mockRepo) UpsertRelations(_ context.Context, rels []similarity.Relation) (int, error) {
	m.upserted = rels
	return len(rels) * 2, m.upsertErr
}

func newRepo() *mockRepo {
	return &mockRepo{
		centroids: []searchrepo.Centroid{
			{DocumentID: "a", Category: knowledge.Codes, Language: knowledge.French, Vector: []float32{1, 0}},
			{DocumentID: "b", Category: knowledge.Codes, Language: knowledge.French, Vector: []float32{1, 0.1}},
		},
		neighbours: map[string][]searchrepo.Neighbour{
			"a": {{DocumentID: "b", Similarity: 0.90}},
			"b": {{DocumentID: "a", Similarity: 0.92}, {DocumentID: "c", Similarity: 1.0000001}},
		},
	}
}

func TestBuild(t *testing.T) {
	repo := newRepo()
	rep, err := New(repo, zap.NewNop()).Build(context.Background(), Options{Provider: "openai", SameCategory: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Documents != 2 || len(rep.Relations) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	ab := rep.Relations[0]
	if ab.SourceID != "a" || ab.TargetID != "b" || ab.Strength != 0.92 {
		t.Errorf("a-b relation = %+v, want strongest direction kept", ab)
	}
	if rep.Relations[1].Strength != 1 {
		t.Errorf("strength = %v, want clamped to 1", rep.Relations[1].Strength)
	}
	if rep.Written != 4 || len(repo.upserted) != 2 {
		t.Errorf("written = %d upserted = %d", rep.Written, len(repo.upserted))
	}

	q := repo.queries[0]
	if q.MinSimilarity != DefaultMinSimilarity || q.Limit != DefaultMaxResults {
		t.Errorf("defaults not applied: %+v", q)
	}
	if q.Category == nil || *q.Category != knowledge.Codes || q.Language != nil {
		t.Errorf("filters = %v / %v", q.Category, q.Language)
	}
}

func TestBuild_DryRun(t *testing.T) {
	repo := newRepo()
	rep, err := New(repo, zap.NewNop()).Build(context.Background(), Options{Provider: "openai", DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.upserted != nil || rep.Written != 0 || len(rep.Relations) == 0 {
		t.Errorf("dry run wrote relations: %+v", rep)
	}
}

func TestBuild_Validation(t *testing.T) {
	s := New(newRepo(), zap.NewNop())
	for _, opts := range []Options{{}, {Provider: "openai", MinSimilarity: 1.5}} {
		if _, err := s.Build(context.Background(), opts); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: expected ErrValidation, got %v", opts, err)
		}
	}
}

func TestBuild_RepoErrors(t *testing.T) {
	repo := newRepo()
	repo.err = errors.New("boom")
	if _, err := New(repo, zap.NewNop()).Build(context.Background(), Options{Provider: "openai"}); err == nil {
		t.Error("expected centroid error")
	}

	repo = newRepo()
	repo.upsertErr = errors.New("boom")
	if _, err := New(repo, zap.NewNop()).Build(context.Background(), Options{Provider: "openai"}); err == nil {
		t.Error("expected upsert error")
	}
}
