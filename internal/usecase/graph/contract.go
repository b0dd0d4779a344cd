package graph

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
)

// Repository is the centroid store the builder reads and writes.
type Repository interface {
	Centroids(ctx context.Context, provider string) ([]searchrepo.Centroid, error)
	Neighbours(ctx context.Context, q searchrepo.NeighbourQuery) ([]searchrepo.Neighbour, error)
	UpsertRelations(ctx context.Context, rels []similarity.Relation) (int, error)
}
