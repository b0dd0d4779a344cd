package app

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/domain"
)

type stubProvider struct {
	mu    sync.Mutex
	name  string
	err   error
	calls int
}

func (p *stubProvider) Name() string      { return p.name }
func (p *stubProvider) Dimensions() int   { return 2 }
func (p *stubProvider) MaxBatchSize() int { return 16 }

func (p *stubProvider) Embed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return domain.BatchEmbeddingResult{}, p.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 1}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func (p *stubProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) MGet(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memKV) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
