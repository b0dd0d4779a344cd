package eval

// Case is a gold question with the documents a good retrieval must surface.
type Case struct {
	ID                  string   `yaml:"id"`
	Question            string   `yaml:"question"`
	Category            string   `yaml:"category,omitempty"`
	ExpectedDocumentIDs []string `yaml:"expected_document_ids"`
}

// CaseResult is the retrieval outcome for one case.
type CaseResult struct {
	CaseID       string
	RetrievedIDs []string
	Hit          bool
	// Rank is the 1-based position of the first expected document, 0 when absent.
	Rank int
}

// BenchmarkResult aggregates retrieval quality over a case set.
type BenchmarkResult struct {
	K         int
	Cases     int
	RecallAtK float64
	MRR       float64
	Results   []CaseResult
}

// Score computes Recall@K and MRR for retrieved document ids per case.
// retrieved[i] holds the ranked ids for cases[i]; only the first k count.
func Score(cases []Case, retrieved [][]string, k int) BenchmarkResult {
	res := BenchmarkResult{K: k, Cases: len(cases), Results: make([]CaseResult, len(cases))}
	if len(cases) == 0 {
		return res
	}

	var hits, rr float64
	for i, c := range cases {
		ids := retrieved[i]
		if len(ids) > k {
			ids = ids[:k]
		}
		expected := make(map[string]struct{}, len(c.ExpectedDocumentIDs))
		for _, id := range c.ExpectedDocumentIDs {
			expected[id] = struct{}{}
		}

		cr := CaseResult{CaseID: c.ID, RetrievedIDs: ids}
		for pos, id := range ids {
			if _, ok := expected[id]; ok {
				cr.Hit = true
				cr.Rank = pos + 1
				break
			}
		}
		if cr.Hit {
			hits++
			rr += 1 / float64(cr.Rank)
		}
		res.Results[i] = cr
	}

	n := float64(len(cases))
	res.RecallAtK = hits / n
	res.MRR = rr / n
	return res
}
