// Package embedding composes embedding providers into a guarded fallback chain.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// DefaultCallTimeout bounds a single provider call when none is configured.
const DefaultCallTimeout = 30 * time.Second

// GuardConfig configures a guarded provider.
type GuardConfig struct {
	// InterCallDelay is the fixed pause between two calls to the provider.
	InterCallDelay time.Duration
	// CallTimeout bounds every provider call; a timeout counts as a failure.
	CallTimeout time.Duration
}

// Guarded wraps a provider with sub-batching, pacing, a per-call timeout
// and a circuit breaker. Transport metrics are recorded by the provider itself.
type Guarded struct {
	inner   domain.Provider
	breaker *Breaker
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

var _ domain.Provider = (*Guarded)(nil)

// NewGuarded creates a guarded provider. The limiter is shared by every caller.
func NewGuarded(inner domain.Provider, breaker *Breaker, cfg GuardConfig, logger *zap.Logger) *Guarded {
	limit := rate.Inf
	if cfg.InterCallDelay > 0 {
		limit = rate.Every(cfg.InterCallDelay)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Guarded{
		inner:   inner,
		breaker: breaker,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		logger:  logger,
	}
}

// Name returns the provider name.
func (g *Guarded) Name() string { return g.inner.Name() }

// Dimensions returns the provider dimensions.
func (g *Guarded) Dimensions() int { return g.inner.Dimensions() }

// MaxBatchSize returns the provider batch limit.
func (g *Guarded) MaxBatchSize() int { return g.inner.MaxBatchSize() }

// Breaker returns the provider's circuit breaker.
func (g *Guarded) Breaker() *Breaker { return g.breaker }

// Embed embeds texts in sub-batches of MaxBatchSize.
func (g *Guarded) Embed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	size := g.inner.MaxBatchSize()
	if size <= 0 {
		size = len(texts)
	}

	var out domain.BatchEmbeddingResult
	for i, part := range lo.Chunk(texts, size) {
		res, err := g.call(ctx, part)
		if err != nil {
			g.logger.Error("Batch embedding request failed",
				zap.String("provider", g.inner.Name()),
				zap.Int("chunk_offset", i*size),
				zap.Int("chunk_size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, err
		}
		out.Append(res)
	}
	return out, nil
}

// call makes one paced, timed, breaker-guarded provider call.
func (g *Guarded) call(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	name := g.inner.Name()

	ticket, err := g.breaker.Allow()
	if err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(name, "", "breaker_open").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%s: %w", name, err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		ticket.Release()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%s: wait for rate limiter: %w", name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.inner.Embed(callCtx, texts)
	if err == nil {
		err = domain.CheckShape(res, len(texts), g.inner.Dimensions())
		if err != nil {
			metrics.EmbeddingErrorsTotal.WithLabelValues(name, "", "shape").Inc()
		}
	}
	if err != nil {
		// Отмена вызывающей стороной не говорит ничего о провайдере.
		if ctx.Err() != nil {
			ticket.Release()
			return domain.BatchEmbeddingResult{}, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			metrics.EmbeddingErrorsTotal.WithLabelValues(name, "", "timeout").Inc()
			err = fmt.Errorf("call timed out after %s: %w", g.timeout, err)
		}
		ticket.Failure()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%s: %w", name, err)
	}
	ticket.Success()

	g.logger.Debug("Embedding request completed",
		zap.String("provider", name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}
