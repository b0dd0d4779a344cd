package benchmark

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain/search/request"
	"github.com/kailas-cloud/lexdex/internal/usecase/search"
)

// Retriever runs one retrieval.
type Retriever interface {
	Search(ctx context.Context, req *request.Request) (search.Response, error)
}
