package search

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

const judgeConcurrency = 4

// gateLexical drops candidates that carry no term of the query's domains.
// Pinned candidates are exempt, and the best vector candidate is restored
// when everything would be dropped. hits must be in vector rank order.
func gateLexical(hits []result.Hit, in Intent, minConfidence float64) (kept []result.Hit, dropped int) {
	if len(hits) == 0 || len(in.Domains) == 0 || in.Confidence < minConfidence {
		return hits, 0
	}
	kept = make([]result.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Pinned || mentions(normalize.Fold(h.Title+" "+h.Content), in.Domains) {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, hits[0])
	}
	return kept, len(hits) - len(kept)
}

// gateJudge asks the judge about unpinned candidates with similarity in
// [low, high). A "no" drops the candidate; a judge error keeps it.
func gateJudge(
	ctx context.Context, judge Judge, logger *zap.Logger, query string, hits []result.Hit, low, high float64,
) (kept []result.Hit, dropped int) {
	drop := make([]bool, len(hits))
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(judgeConcurrency)
	for i, h := range hits {
		if h.Pinned || h.Similarity < low || h.Similarity >= high {
			continue
		}
		g.Go(func() error {
			ok, err := judge.Relevant(ctx, query, h.Content)
			if err != nil {
				logger.Warn("Relevance judge failed, keeping candidate",
					zap.String("chunk_id", h.ChunkID), zap.Error(err))
				return nil
			}
			mu.Lock()
			drop[i] = !ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	kept = make([]result.Hit, 0, len(hits))
	for i, h := range hits {
		if !drop[i] {
			kept = append(kept, h)
		}
	}
	return kept, len(hits) - len(kept)
}
