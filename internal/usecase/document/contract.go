package document

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// Repository defines the storage contract for knowledge documents.
type Repository interface {
	Create(ctx context.Context, d *knowledge.Document) error
	Get(ctx context.Context, id string) (*knowledge.Document, error)
	Chunks(ctx context.Context, docID string) ([]chunk.Chunk, error)
	Transitions(ctx context.Context, docID string) ([]knowledge.Transition, error)
}
