package search

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/drift"
	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
)

// Repository defines the storage contract for retrieval.
type Repository interface {
	SearchChunks(ctx context.Context, q searchrepo.ChunkQuery) ([]result.Hit, error)
	FallbackProviders(ctx context.Context, provider string, f request.Filters) ([]string, error)
	Relations(ctx context.Context, docIDs []string, minStrength float64) ([]similarity.Relation, error)
}

// QueryEmbedder embeds a query through the provider chain and reports the
// provider used. EmbedQueryWith targets one provider directly.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) (vec []float32, provider string, err error)
	EmbedQueryWith(ctx context.Context, provider, query string) ([]float32, error)
}

// Judge decides whether a borderline passage is relevant to the query.
type Judge interface {
	Relevant(ctx context.Context, query, passage string) (bool, error)
}

// EventRecorder stores retrieval events for drift monitoring.
type EventRecorder interface {
	RecordQuery(ctx context.Context, e drift.QueryEvent) error
}
