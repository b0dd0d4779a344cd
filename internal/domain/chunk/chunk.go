package chunk

import (
	"fmt"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
)

// Strategy names the chunking mode that produced a chunk.
type Strategy string

// Chunking strategies.
const (
	StrategyAdaptive Strategy = "adaptive"
	StrategyArticle  Strategy = "article"
)

// Chunk is a retrievable slice of a document's normalized text.
type Chunk struct {
	ID             string
	DocumentID     string
	Ordinal        int
	Content        string
	TokenCount     int
	Strategy       Strategy
	ArticleNumbers []string
	HeadingPath    []string
	Start          int
	End            int
	Locator        locator.Locator
}

// ArticleNumber returns the first tagged article number, or "".
func (c *Chunk) ArticleNumber() string {
	if len(c.ArticleNumbers) == 0 {
		return ""
	}
	return c.ArticleNumbers[0]
}

// Draft is a chunk before it is bound to a document.
type Draft struct {
	Content        string
	TokenCount     int
	Strategy       Strategy
	ArticleNumbers []string
	HeadingPath    []string
	Start          int
	End            int
}

// CheckOrdinals verifies that chunks carry ordinals 0..N-1 in order.
func CheckOrdinals(chunks []Chunk) error {
	for i := range chunks {
		if chunks[i].Ordinal != i {
			return fmt.Errorf("chunk %d has ordinal %d: %w", i, chunks[i].Ordinal, domain.ErrValidation)
		}
	}
	return nil
}

// Vector is one provider's embedding of a chunk.
type Vector struct {
	ChunkID    string
	Provider   string
	Dimensions int
	Values     []float32
}

// Centroid is the mean of a document's chunk vectors for one provider.
type Centroid struct {
	DocumentID string
	Provider   string
	Dimensions int
	Values     []float32
}

// Mean returns the component-wise mean of vectors, nil when empty or ragged.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	out := make([]float32, dims)
	for _, v := range vectors {
		if len(v) != dims {
			return nil
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
