// Package chunking splits normalized legal text into retrievable chunks.
//
// Codes and the constitution are chunked one article per chunk; everything
// else, and article-mode text without markers, is chunked adaptively.
// Chunk content is always a contiguous slice of the input, so Start/End are
// exact byte offsets. Output is deterministic for a given text and config.
package chunking

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// Engine chunks normalized text.
type Engine struct {
	cfg     Config
	counter TokenCounter
}

// New creates an engine. A nil counter uses EstimateCounter.
func New(cfg Config, counter TokenCounter) *Engine {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Engine{cfg: cfg.withDefaults(), counter: counter}
}

// Params returns the adaptive sizes for c.
func (e *Engine) Params(c knowledge.Category) Params {
	if p, ok := e.cfg.Table[c]; ok {
		return p
	}
	return e.cfg.Table[knowledge.Autre]
}

// Fingerprint identifies the configuration applied to category c. It changes
// whenever a setting that affects c's chunks changes.
func (e *Engine) Fingerprint(c knowledge.Category) string {
	p := e.Params(c)
	return fmt.Sprintf("%s:%t:%d/%d/%d:%d/%d/%d",
		e.counter.Name(), ArticleMode(c), p.Target, p.Overlap, p.Min,
		e.cfg.ArticleGroupTokens, e.cfg.MaxArticleGroup, e.cfg.MaxArticleFactor)
}

// Chunk splits text for category c. Empty text, or text below the category
// minimum, fails with content_too_short.
func (e *Engine) Chunk(text string, c knowledge.Category) ([]chunk.Draft, error) {
	p := e.Params(c)
	whole := trim(text, span{0, len(text)})
	if whole.empty() {
		return nil, domain.NewReasonError(domain.ReasonContentTooShort, "no text to chunk")
	}
	if n := e.tokens(text, whole); n < p.Min {
		return nil, domain.Reasonf(domain.ReasonContentTooShort, "text has %d tokens, minimum is %d", n, p.Min)
	}

	if ArticleMode(c) {
		if drafts := e.byArticle(text, p); len(drafts) > 0 {
			return drafts, nil
		}
	}
	return e.drafts(text, e.adaptive(text, whole, p, p.Overlap)), nil
}

func (e *Engine) byArticle(text string, p Params) []chunk.Draft {
	arts, preambleEnd := articles(text)
	if len(arts) == 0 {
		return nil
	}

	var out []chunk.Draft
	if pre := trim(text, span{0, preambleEnd}); !pre.empty() && e.tokens(text, pre) >= p.Min {
		out = append(out, e.drafts(text, e.adaptive(text, pre, p, p.Overlap))...)
	}

	maxTokens := p.Target * e.cfg.MaxArticleFactor
	for i := 0; i < len(arts); {
		a := arts[i]
		n := e.tokens(text, a.span)
		switch {
		case e.stub(text, a):
			group, nums := a.span, []string{a.number}
			j := i + 1
			for ; j < len(arts) && j-i < e.cfg.MaxArticleGroup; j++ {
				b := arts[j]
				if !e.stub(text, b) ||
					!slices.Equal(b.headings, a.headings) ||
					e.tokens(text, span{group.start, b.end}) > p.Target {
					break
				}
				group.end = b.end
				nums = append(nums, b.number)
			}
			out = append(out, e.draft(text, group, chunk.StrategyArticle, nums, a.headings))
			i = j
		case n > maxTokens:
			for _, piece := range e.adaptive(text, a.span, p, 0) {
				out = append(out, e.draft(text, piece, chunk.StrategyArticle, []string{a.number}, a.headings))
			}
			i++
		default:
			out = append(out, e.draft(text, a.span, chunk.StrategyArticle, []string{a.number}, a.headings))
			i++
		}
	}
	return out
}

// stub reports whether an article body, marker excluded, is too short to
// stand alone, as with "Abrogé.".
func (e *Engine) stub(text string, a article) bool {
	body := trim(text, span{min(a.body, a.end), a.end})
	return e.tokens(text, body) < e.cfg.ArticleGroupTokens
}

func (e *Engine) drafts(text string, spans []span) []chunk.Draft {
	out := make([]chunk.Draft, 0, len(spans))
	for _, s := range spans {
		out = append(out, e.draft(text, s, chunk.StrategyAdaptive, nil, nil))
	}
	return out
}

func (e *Engine) draft(text string, s span, st chunk.Strategy, nums, headings []string) chunk.Draft {
	return chunk.Draft{
		Content:        text[s.start:s.end],
		TokenCount:     e.tokens(text, s),
		Strategy:       st,
		ArticleNumbers: slices.Clone(nums),
		HeadingPath:    slices.Clone(headings),
		Start:          s.start,
		End:            s.end,
	}
}
