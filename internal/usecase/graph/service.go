// Package graph builds "similar to" relations between approved documents
// from their centroid vectors.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
)

// Builder defaults.
const (
	DefaultMinSimilarity = 0.85
	DefaultMaxResults    = 10
)

// Options tunes one build.
type Options struct {
	Provider      string
	MinSimilarity float64
	MaxResults    int
	SameCategory  bool
	SameLanguage  bool
	// DryRun computes relations without writing them.
	DryRun bool
}

// Report summarizes a build.
type Report struct {
	Documents int                   `json:"documents"`
	Relations []similarity.Relation `json:"relations"`
	Written   int                   `json:"written"`
	DryRun    bool                  `json:"dryRun"`
	Duration  time.Duration         `json:"duration"`
}

// Service builds the similarity graph.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a graph builder.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Build finds neighbours for every centroid of opts.Provider and upserts
// the resulting relations unless opts.DryRun is set.
func (s *Service) Build(ctx context.Context, opts Options) (Report, error) {
	if opts.Provider == "" {
		return Report{}, fmt.Errorf("provider is required: %w", domain.ErrValidation)
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}
	if opts.MinSimilarity < 0 || opts.MinSimilarity > 1 {
		return Report{}, fmt.Errorf("min similarity %.3f outside 0..1: %w", opts.MinSimilarity, domain.ErrValidation)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	start := time.Now()
	centroids, err := s.repo.Centroids(ctx, opts.Provider)
	if err != nil {
		return Report{}, fmt.Errorf("build graph: %w", err)
	}

	var rels []similarity.Relation
	for _, c := range centroids {
		q := searchrepo.NeighbourQuery{
			DocumentID:    c.DocumentID,
			Provider:      opts.Provider,
			Vector:        c.Vector,
			MinSimilarity: opts.MinSimilarity,
			Limit:         opts.MaxResults,
		}
		if opts.SameCategory {
			q.Category = lo.ToPtr(c.Category)
		}
		if opts.SameLanguage {
			q.Language = lo.ToPtr(c.Language)
		}
		ns, err := s.repo.Neighbours(ctx, q)
		if err != nil {
			return Report{}, fmt.Errorf("build graph: %w", err)
		}
		for _, n := range ns {
			rel, err := similarity.New(c.DocumentID, n.DocumentID, clamp(n.Similarity))
			if err != nil {
				s.logger.Warn("Skipping invalid relation",
					zap.String("source_id", c.DocumentID), zap.String("target_id", n.DocumentID), zap.Error(err))
				continue
			}
			rels = append(rels, rel)
		}
	}
	rels = dedupe(rels)

	rep := Report{Documents: len(centroids), Relations: rels, DryRun: opts.DryRun}
	if !opts.DryRun {
		n, err := s.repo.UpsertRelations(ctx, rels)
		if err != nil {
			return Report{}, fmt.Errorf("build graph: %w", err)
		}
		rep.Written = n
	}
	rep.Duration = time.Since(start)

	s.logger.Info("Similarity graph built",
		zap.String("provider", opts.Provider),
		zap.Int("documents", rep.Documents),
		zap.Int("relations", len(rels)),
		zap.Int("written", rep.Written),
		zap.Bool("dry_run", opts.DryRun),
		zap.Duration("took", rep.Duration),
	)
	return rep, nil
}

// dedupe keeps one edge per unordered pair, the strongest, oriented from
// the lexically smaller id.
func dedupe(rels []similarity.Relation) []similarity.Relation {
	type pair struct{ a, b string }
	idx := make(map[pair]int, len(rels))
	out := make([]similarity.Relation, 0, len(rels))
	for _, r := range rels {
		if r.SourceID > r.TargetID {
			r = r.Mirror()
		}
		k := pair{r.SourceID, r.TargetID}
		if i, ok := idx[k]; ok {
			if r.Strength > out[i].Strength {
				out[i] = r
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}

// float rounding in pgvector can land just above 1
func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
