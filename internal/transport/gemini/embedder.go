// Package gemini adapts the Gemini embedding API as a batch embedding provider.
package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// DefaultMaxBatchSize is the Gemini limit of requests per BatchEmbedContents call.
const DefaultMaxBatchSize = 100

// Config holds the Gemini provider settings.
type Config struct {
	APIKey       string
	Model        string
	Dimensions   int
	MaxBatchSize int
	Provider     string
	Logger       *zap.Logger
}

// batchFunc embeds one batch of texts.
type batchFunc func(ctx context.Context, texts []string) ([]*genai.ContentEmbedding, error)

// Embedder is a Gemini embedding provider.
type Embedder struct {
	client     *genai.Client
	embed      batchFunc
	model      string
	dimensions int
	maxBatch   int
	provider   string
	logger     *zap.Logger
}

var _ domain.Provider = (*Embedder)(nil)

// NewEmbedder creates a Gemini provider. Texts are embedded as retrieval documents.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	em := client.EmbeddingModel(cfg.Model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	e := newEmbedder(cfg, func(ctx context.Context, texts []string) ([]*genai.ContentEmbedding, error) {
		b := em.NewBatch()
		for _, t := range texts {
			b.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by the caller
		}
		return resp.Embeddings, nil
	})
	e.client = client
	return e, nil
}

func newEmbedder(cfg *Config, fn batchFunc) *Embedder {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 || maxBatch > DefaultMaxBatchSize {
		maxBatch = DefaultMaxBatchSize
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "gemini"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		embed:      fn,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
		provider:   provider,
		logger:     logger,
	}
}

// Name returns the provider name.
func (e *Embedder) Name() string { return e.provider }

// Dimensions returns the model's vector size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// MaxBatchSize returns the request batch limit.
func (e *Embedder) MaxBatchSize() int { return e.maxBatch }

// Embed embeds texts in one BatchEmbedContents call.
// Gemini does not report token usage for embeddings; token counts stay zero.
func (e *Embedder) Embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	embs, err := e.embed(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "api_error").Inc()
		if ctx.Err() != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini batch embed: %w", err)
		}
		return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini batch embed: %v: %w", err, domain.ErrProviderCall)
	}
	if len(embs) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d inputs: %w",
			len(embs), len(texts), domain.ErrProviderCall)
	}

	vectors := make([][]float32, len(embs))
	for i, emb := range embs {
		if emb == nil || len(emb.Values) == 0 {
			metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "empty_response").Inc()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("empty embedding at %d: %w", i, domain.ErrProviderCall)
		}
		vectors[i] = emb.Values
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())
	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client == nil {
		return nil
	}
	if err := e.client.Close(); err != nil {
		return fmt.Errorf("close gemini client: %w", err)
	}
	return nil
}
