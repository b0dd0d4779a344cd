package result

import "github.com/kailas-cloud/lexdex/internal/domain/locator"

// Hit is one retrieved chunk with its scores. Rank is the 0-based position
// in the vector-similarity ordering and breaks final-score ties.
type Hit struct {
	ChunkID        string
	DocumentID     string
	Title          string
	Content        string
	ArticleNumbers []string
	Locator        locator.Locator

	Similarity float64
	Lexical    float64
	Final      float64
	Rank       int
	Pinned     bool
}

// DocumentIDs returns the distinct document ids of hits in order.
func DocumentIDs(hits []Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		out = append(out, h.DocumentID)
	}
	return out
}

// MeanSimilarity returns the mean vector similarity of hits, 0 when empty.
func MeanSimilarity(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Similarity
	}
	return sum / float64(len(hits))
}
