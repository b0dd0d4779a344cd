package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/config"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
	embeddinguc "github.com/kailas-cloud/lexdex/internal/usecase/embedding"
)

func TestChunkTable(t *testing.T) {
	got, err := chunkTable(map[string]chunking.Params{
		"codes":         {Target: 300, Overlap: 0, Min: 20},
		"jurisprudence": {Target: 600, Overlap: 60, Min: 50},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[knowledge.Codes].Target != 300 || got[knowledge.Jurisprudence].Overlap != 60 {
		t.Errorf("unexpected table: %+v", got)
	}

	if got, err := chunkTable(nil); err != nil || got != nil {
		t.Errorf("empty table = %v, %v, want nil, nil", got, err)
	}

	if _, err := chunkTable(map[string]chunking.Params{"recettes": {Target: 100}}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestGraphOptions(t *testing.T) {
	a := &App{Config: config.Config{Graph: config.GraphConfig{
		MinSimilarity: 0.9, MaxResults: 5, SameCategory: true,
	}}}
	o := a.GraphOptions("gemini")
	if o.Provider != "gemini" || o.MinSimilarity != 0.9 || o.MaxResults != 5 || !o.SameCategory || o.SameLanguage {
		t.Errorf("unexpected options: %+v", o)
	}
}

func TestScheduler_DisabledJobs(t *testing.T) {
	a := &App{Logger: zap.NewNop()}
	s, err := a.Scheduler()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected scheduler")
	}
}

func TestScheduler_InvalidSpec(t *testing.T) {
	a := &App{Logger: zap.NewNop()}
	a.Config.Pipeline.Schedule = "every tuesday"
	if _, err := a.Scheduler(); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []int
	a := &App{}
	a.closers = append(a.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })
	a.Close()
	a.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("close order = %v, want [2 1]", order)
	}
}

func TestMember_CacheHitsBypassBreaker(t *testing.T) {
	transport := &stubProvider{name: "openai"}
	a := &App{Logger: zap.NewNop()}
	m, err := a.member(transport, newMemKV(), embeddinguc.BreakerConfig{
		FailureThreshold: 1,
		Window:           time.Minute,
		Cooldown:         20 * time.Millisecond,
	}, embeddinguc.GuardConfig{CallTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain, err := embeddinguc.NewChain([]embeddinguc.Member{m}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := chain.EmbedSet(ctx, []string{"warm"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transport.setErr(errors.New("openai 503"))
	if _, err := chain.EmbedSet(ctx, []string{"fresh"}); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if m.Breaker.State() != embeddinguc.StateOpen {
		t.Fatalf("breaker should be open after a real failure, got %v", m.Breaker.State())
	}
	calls := transport.callCount()

	set, err := chain.EmbedSet(ctx, []string{"warm"})
	if err != nil {
		t.Fatalf("cached text should embed while the breaker is open: %v", err)
	}
	if set.Provider != "openai" || len(set.Vectors) != 1 {
		t.Errorf("unexpected set: %+v", set)
	}

	time.Sleep(30 * time.Millisecond)
	if _, err := chain.EmbedSet(ctx, []string{"warm"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Breaker.State() == embeddinguc.StateClosed {
		t.Error("a cache hit must not close the breaker")
	}
	if got := transport.callCount(); got != calls {
		t.Errorf("cache hits reached the provider: calls %d -> %d", calls, got)
	}

	transport.setErr(nil)
	if _, err := chain.EmbedSet(ctx, []string{"fresh"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Breaker.State() != embeddinguc.StateClosed {
		t.Errorf("a successful trial call should close the breaker, got %v", m.Breaker.State())
	}
}
