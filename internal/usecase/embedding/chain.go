package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/metrics"
)

// Member is one provider of the fallback chain with its breaker.
// The provider enforces the breaker itself (see Guarded); the chain only
// reads it for availability, so a cache above the guard can still answer
// while the breaker is open.
type Member struct {
	Provider domain.Provider
	Breaker  *Breaker
}

// Chain tries providers in configured order until one embeds the whole set.
type Chain struct {
	members []Member
	logger  *zap.Logger
}

// NewChain creates a fallback chain. Order is fallback order.
func NewChain(members []Member, logger *zap.Logger) (*Chain, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("embedding chain needs at least one provider: %w", domain.ErrValidation)
	}
	return &Chain{members: members, logger: logger}, nil
}

// Providers lists provider names in fallback order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Provider.Name()
	}
	return names
}

// Availability reports per provider whether its breaker lets calls through.
func (c *Chain) Availability() map[string]bool {
	out := make(map[string]bool, len(c.members))
	for _, m := range c.members {
		out[m.Provider.Name()] = m.Breaker == nil || m.Breaker.Available()
	}
	return out
}

// EmbedSet embeds texts with the first provider that succeeds for all of them.
// A provider whose breaker is open fails fast unless its cache holds every
// vector. When every provider fails the error is a provider_unavailable
// ReasonError carrying each provider's reason.
func (c *Chain) EmbedSet(ctx context.Context, texts []string) (domain.EmbeddedSet, error) {
	first := c.members[0].Provider.Name()
	var merr *multierror.Error

	for _, m := range c.members {
		name := m.Provider.Name()
		res, err := m.Provider.Embed(ctx, texts)
		if err != nil {
			merr = multierror.Append(merr, err)
			if ctx.Err() != nil {
				return domain.EmbeddedSet{}, fmt.Errorf("embed set: %w", ctx.Err())
			}
			if errors.Is(err, domain.ErrBreakerOpen) {
				continue
			}
			c.logger.Warn("Embedding provider failed, trying next",
				zap.String("provider", name), zap.Int("texts", len(texts)), zap.Error(err))
			continue
		}

		if name != first {
			metrics.EmbeddingFallbackTotal.WithLabelValues(first, name).Inc()
		}
		return domain.EmbeddedSet{
			Provider:   name,
			Dimensions: m.Provider.Dimensions(),
			Vectors:    res.Embeddings,
			Tokens:     res.TotalTokens,
		}, nil
	}

	metrics.EmbeddingFallbackTotal.WithLabelValues(first, "none").Inc()
	return domain.EmbeddedSet{}, &domain.ReasonError{
		Code:    domain.ReasonProviderUnavailable,
		Message: merr.Error(),
		Err:     domain.ErrProviderUnavailable,
	}
}

// EmbedQuery embeds a single query text through the chain.
func (c *Chain) EmbedQuery(ctx context.Context, query string) (vec []float32, provider string, err error) {
	set, err := c.EmbedSet(ctx, []string{query})
	if err != nil {
		return nil, "", err
	}
	return set.Vectors[0], set.Provider, nil
}

// EmbedQueryWith embeds a query with one named provider, bypassing the
// fallback order. Search uses it to reach vectors left by a fallback.
func (c *Chain) EmbedQueryWith(ctx context.Context, provider, query string) ([]float32, error) {
	for _, m := range c.members {
		if m.Provider.Name() != provider {
			continue
		}
		res, err := m.Provider.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query with %s: %w", provider, err)
		}
		if err := domain.CheckShape(res, 1, m.Provider.Dimensions()); err != nil {
			return nil, fmt.Errorf("%s: %w", provider, err)
		}
		return res.Embeddings[0], nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q: %w", provider, domain.ErrValidation)
}
