package pipeline

import (
	"context"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
	"github.com/kailas-cloud/lexdex/internal/usecase/classify"
	"github.com/kailas-cloud/lexdex/internal/usecase/extract"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

// Repository is the document storage used by batch runs.
type Repository interface {
	Claim(ctx context.Context, f knowledge.ClaimFilter) ([]*knowledge.Document, error)
	Release(ctx context.Context, id, token string) error
	Commit(ctx context.Context, c knowledge.Commit) error
	Chunks(ctx context.Context, docID string) ([]chunk.Chunk, error)
}

// Extractor pulls raw text out of a stored source object.
type Extractor interface {
	Extract(ctx context.Context, src knowledge.Source) (extract.Extraction, error)
}

// Normalizer cleans raw text and tags its language.
type Normalizer interface {
	Normalize(raw string) normalize.Result
}

// Classifier decides a document's category.
type Classifier interface {
	Classify(title, text string, lang knowledge.Language, declared *knowledge.Category) classify.Result
}

// Chunker splits normalized text. Fingerprint changes with any setting that
// changes the chunks of a category.
type Chunker interface {
	Chunk(text string, c knowledge.Category) ([]chunk.Draft, error)
	Fingerprint(c knowledge.Category) string
	Params(c knowledge.Category) chunking.Params
}

// Embedder embeds a text set through the provider fallback chain.
type Embedder interface {
	EmbedSet(ctx context.Context, texts []string) (domain.EmbeddedSet, error)
	Providers() []string
}
