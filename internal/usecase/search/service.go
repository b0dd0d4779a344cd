// Package search serves retrieval: vector candidates, relevance gating,
// lexical reranking and similarity-graph boosting.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain/drift"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/metrics"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
)

// Response is a ranked retrieval answer.
type Response struct {
	Hits     []result.Hit
	Provider string
	Intent   Intent
}

// Service handles retrieval requests.
type Service struct {
	repo   Repository
	embed  QueryEmbedder
	judge  Judge
	events EventRecorder
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a search service. judge and events can be nil.
func New(repo Repository, embed QueryEmbedder, judge Judge, events EventRecorder, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		repo: repo, embed: embed, judge: judge, events: events,
		cfg: cfg.withDefaults(), logger: logger, now: time.Now,
	}
}

// Search retrieves, gates and reranks chunks for req.
func (s *Service) Search(ctx context.Context, req *request.Request) (Response, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	intent := ClassifyIntent(req.Query())

	vec, provider, err := s.embed.EmbedQuery(ctx, req.Query())
	if err != nil {
		return Response{}, fmt.Errorf("vectorize query: %w", err)
	}

	limit := max(req.MaxResults()*s.cfg.CandidateMultiplier, s.cfg.MinCandidates)
	hits, err := s.repo.SearchChunks(ctx, searchrepo.ChunkQuery{
		Provider: provider,
		Vector:   vec,
		Filters:  req.Filters(),
		Limit:    limit,
	})
	if err != nil {
		return Response{}, fmt.Errorf("search chunks: %w", err)
	}
	hits = s.withFallbackVectors(ctx, req, provider, hits, limit)
	for i := range hits {
		hits[i].Pinned = hits[i].Similarity >= s.cfg.PinSimilarity
	}

	var dropped int
	hits, dropped = gateLexical(hits, intent, s.cfg.Gate.IntentConfidence)
	metrics.GateDroppedTotal.WithLabelValues("lexical").Add(float64(dropped))
	if s.cfg.Gate.JudgeEnabled && s.judge != nil {
		hits, dropped = gateJudge(ctx, s.judge, s.logger, req.Query(), hits, s.cfg.Gate.BorderLow, s.cfg.Gate.BorderHigh)
		metrics.GateDroppedTotal.WithLabelValues("judge").Add(float64(dropped))
	}

	lexicalScores(req.Query(), hits)
	blend(hits, s.cfg.VectorWeight, s.cfg.LexicalWeight)

	if docIDs := result.DocumentIDs(hits); len(docIDs) > 1 {
		rels, err := s.repo.Relations(ctx, docIDs, s.cfg.MinRelationStrength)
		if err != nil {
			// буст только подталкивает, без графа ранжирование остаётся валидным
			s.logger.Warn("Failed to load similarity relations", zap.Error(err))
		}
		boost(hits, rels, s.cfg.BoostTopK, s.cfg.GraphBoost, s.cfg.MinRelationStrength)
	}

	order(hits)
	if len(hits) > req.MaxResults() {
		hits = hits[:req.MaxResults()]
	}

	s.record(ctx, hits)
	return Response{Hits: hits, Provider: provider, Intent: intent}, nil
}

// withFallbackVectors adds candidates from chunks that only a fallback
// provider embedded, querying each such provider with its own query vector.
// Failures leave the primary candidates untouched.
func (s *Service) withFallbackVectors(
	ctx context.Context, req *request.Request, provider string, hits []result.Hit, limit int,
) []result.Hit {
	others, err := s.repo.FallbackProviders(ctx, provider, req.Filters())
	if err != nil {
		s.logger.Warn("Failed to list fallback providers", zap.Error(err))
		return hits
	}
	if len(others) == 0 {
		return hits
	}
	for _, p := range others {
		vec, err := s.embed.EmbedQueryWith(ctx, p, req.Query())
		if err != nil {
			s.logger.Warn("Fallback vectors not searched",
				zap.String("provider", p), zap.Error(err))
			continue
		}
		more, err := s.repo.SearchChunks(ctx, searchrepo.ChunkQuery{
			Provider:  p,
			Vector:    vec,
			Filters:   req.Filters(),
			Limit:     limit,
			Uncovered: provider,
		})
		if err != nil {
			s.logger.Warn("Fallback vectors not searched",
				zap.String("provider", p), zap.Error(err))
			continue
		}
		hits = append(hits, more...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i
	}
	return hits
}

func (s *Service) record(ctx context.Context, hits []result.Hit) {
	if len(hits) == 0 {
		metrics.SearchAbstainedTotal.Inc()
	}
	if s.events == nil {
		return
	}
	e := drift.QueryEvent{
		MeanSimilarity: result.MeanSimilarity(hits),
		Results:        len(hits),
		Abstained:      len(hits) == 0,
		At:             s.now().UTC(),
	}
	if err := s.events.RecordQuery(ctx, e); err != nil {
		s.logger.Warn("Failed to record query event", zap.Error(err))
	}
}
