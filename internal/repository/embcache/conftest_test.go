package embcache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// mockProvider embeds text t as [len(t), 1] and records every batch.
type mockProvider struct {
	mu       sync.Mutex
	batch    int
	calls    [][]string
	failFrom int // fail calls with index >= failFrom when > 0
	err      error

	// started, when set, receives once per call; gate holds calls until closed.
	started chan struct{}
	gate    chan struct{}
	ctxErrs []error
}

func (m *mockProvider) Name() string      { return "mock" }
func (m *mockProvider) Dimensions() int   { return 2 }
func (m *mockProvider) MaxBatchSize() int { return m.batch }

func (m *mockProvider) Embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.err != nil && len(m.calls) > m.failFrom {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: len(texts), TotalTokens: len(texts)}, nil
}

func (m *mockProvider) embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []string
	for _, c := range m.calls {
		all = append(all, c...)
	}
	return all
}

// memStore is an in-memory store with SET NX semantics.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	mgetErr error
	setErr  error
	sets    int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) MGet(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mgetErr != nil {
		return nil, s.mgetErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = s.data[k]
	}
	return out, nil
}

func (s *memStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	s.sets++
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func newTestCache(t *testing.T, inner *mockProvider, s *memStore, l1 int) *CachedProvider {
	t.Helper()
	c, err := New(inner, s, Options{TTL: time.Hour, L1Size: l1}, metrics.EmbeddingCacheTotal, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
