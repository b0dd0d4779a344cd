package batch

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// DocumentMutator applies a change to one document in its own transaction.
type DocumentMutator interface {
	Mutate(ctx context.Context, id string, fn func(d *knowledge.Document) ([]knowledge.Transition, error)) error
}
