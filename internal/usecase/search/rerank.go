package search

import (
	"math"
	"sort"

	"github.com/kailas-cloud/lexdex/internal/domain/search/result"
	"github.com/kailas-cloud/lexdex/internal/domain/similarity"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

// lexicalScores sets Lexical on every hit to the cosine between the query's
// and the hit's TF-IDF vectors. IDF is computed over the hits plus the query.
func lexicalScores(query string, hits []result.Hit) {
	docs := make([][]string, len(hits)+1)
	docs[0] = normalize.Tokens(query)
	for i, h := range hits {
		docs[i+1] = normalize.Tokens(h.Content)
	}

	df := make(map[string]int)
	for _, toks := range docs {
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				df[t]++
			}
		}
	}
	n := float64(len(docs))
	idf := func(t string) float64 { return math.Log(n/(1+float64(df[t]))) + 1 }

	q := tfidf(docs[0], idf)
	for i := range hits {
		hits[i].Lexical = cosine(q, tfidf(docs[i+1], idf))
	}
}

func tfidf(tokens []string, idf func(string) float64) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	v := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		v[t]++
	}
	for t, c := range v {
		v[t] = c / float64(len(tokens)) * idf(t)
	}
	return v
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, x := range a {
		na += x * x
		dot += x * b[t]
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// blend sets Final from the vector and lexical scores.
func blend(hits []result.Hit, vectorWeight, lexicalWeight float64) {
	for i := range hits {
		hits[i].Final = vectorWeight*hits[i].Similarity + lexicalWeight*hits[i].Lexical
	}
}

// boost nudges hits whose document is related to another document among
// the topK hits by blended score: Final += weight × strength of the
// strongest such relation.
func boost(hits []result.Hit, rels []similarity.Relation, topK int, weight, minStrength float64) {
	if len(rels) == 0 || len(hits) < 2 {
		return
	}
	ranked := append([]result.Hit(nil), hits...)
	sort.SliceStable(ranked, func(i, j int) bool { return byScore(ranked[i], ranked[j]) })
	top := make(map[string]struct{}, topK)
	for i := 0; i < len(ranked) && i < topK; i++ {
		top[ranked[i].DocumentID] = struct{}{}
	}

	strongest := make(map[string]float64)
	for _, r := range rels {
		if r.Strength < minStrength || r.SourceID == r.TargetID {
			continue
		}
		if _, ok := top[r.TargetID]; ok && r.Strength > strongest[r.SourceID] {
			strongest[r.SourceID] = r.Strength
		}
	}
	for i := range hits {
		if s, ok := strongest[hits[i].DocumentID]; ok {
			hits[i].Final += weight * s
		}
	}
}

// order puts pinned hits first, then sorts by final score with the vector
// rank breaking ties.
func order(hits []result.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Pinned != hits[j].Pinned {
			return hits[i].Pinned
		}
		return byScore(hits[i], hits[j])
	})
}

func byScore(a, b result.Hit) bool {
	if a.Final != b.Final {
		return a.Final > b.Final
	}
	return a.Rank < b.Rank
}
