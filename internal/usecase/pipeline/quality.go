package pipeline

import (
	"math"

	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
)

// Quality is the heuristic score of a chunked document. Each part is 0..25
// and Overall is their sum.
type Quality struct {
	Overall      float64 `json:"overall"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Structure    float64 `json:"structure"`
	Reliability  float64 `json:"reliability"`
}

// Score rates d from its chunk set. It is deterministic.
func Score(d *knowledge.Document, chunks []chunk.Chunk, p chunking.Params) Quality {
	if len(chunks) == 0 {
		return Quality{}
	}
	var q Quality

	// completeness: enough text for the category, two full chunks scores full marks
	total := 0
	for i := range chunks {
		total += chunks[i].TokenCount
	}
	q.Completeness = 25 * math.Min(1, float64(total)/float64(2*max(p.Target, 1)))

	// clarity: chunks neither runts nor oversized
	sized := 0
	for i := range chunks {
		if n := chunks[i].TokenCount; n >= p.Min && n <= 2*max(p.Target, 1) {
			sized++
		}
	}
	q.Clarity = 25 * float64(sized) / float64(len(chunks))

	structured := 0
	for i := range chunks {
		if len(chunks[i].ArticleNumbers) > 0 || len(chunks[i].HeadingPath) > 0 {
			structured++
		}
	}
	switch {
	case structured > 0:
		q.Structure = 15 + 10*float64(structured)/float64(len(chunks))
	case len(chunks) > 1:
		q.Structure = 15
	default:
		q.Structure = 10
	}

	q.Reliability = 25
	if d.NeedsReview() {
		q.Reliability -= 10
	}
	if d.Language() == knowledge.Mixed {
		q.Reliability -= 5
	}
	src := d.Source()
	if src.Kind == locator.KindPDFOCR && len(src.PageConfidence) > 0 {
		var sum float64
		for _, c := range src.PageConfidence {
			sum += c
		}
		q.Reliability *= math.Min(1, sum/float64(len(src.PageConfidence))/100)
	}
	q.Reliability = math.Max(0, q.Reliability)

	q.Completeness = round1(q.Completeness)
	q.Clarity = round1(q.Clarity)
	q.Structure = round1(q.Structure)
	q.Reliability = round1(q.Reliability)
	q.Overall = round1(q.Completeness + q.Clarity + q.Structure + q.Reliability)
	return q
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
