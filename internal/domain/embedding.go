package domain

import (
	"context"
	"fmt"
)

// Provider is the closed embedding provider contract shared between layers.
// Embed returns exactly one vector per input text, in input order.
type Provider interface {
	Name() string
	Dimensions() int
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BatchEmbeddingResult carries embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Append concatenates another sub-batch result.
func (r *BatchEmbeddingResult) Append(o BatchEmbeddingResult) {
	r.Embeddings = append(r.Embeddings, o.Embeddings...)
	r.PromptTokens += o.PromptTokens
	r.TotalTokens += o.TotalTokens
}

// EmbeddedSet is the outcome of embedding a text set through the fallback chain.
type EmbeddedSet struct {
	Provider   string
	Dimensions int
	Vectors    [][]float32
	Tokens     int
}

// CheckShape validates that res carries n vectors of the expected dimension.
func CheckShape(res BatchEmbeddingResult, n, dims int) error {
	if len(res.Embeddings) != n {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(res.Embeddings), n)
	}
	if dims <= 0 {
		return nil
	}
	for i, v := range res.Embeddings {
		if len(v) != dims {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return nil
}
