package chunking

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/lexdex/internal/domain/chunk"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
)

var chunkNamespace = uuid.MustParse("6f1c3a52-6a43-4c7e-9a8e-5d2f1e0b7c41")

// Bind turns drafts into chunks of docID with ordinals 0..N-1, stable ids
// and locators. anchors must already be normalized like text.
func Bind(docID, text string, src knowledge.Source, anchors []knowledge.Anchor, drafts []chunk.Draft) []chunk.Chunk {
	out := make([]chunk.Chunk, len(drafts))
	for i, d := range drafts {
		out[i] = chunk.Chunk{
			ID:             ChunkID(docID, i, d.Content),
			DocumentID:     docID,
			Ordinal:        i,
			Content:        d.Content,
			TokenCount:     d.TokenCount,
			Strategy:       d.Strategy,
			ArticleNumbers: d.ArticleNumbers,
			HeadingPath:    d.HeadingPath,
			Start:          d.Start,
			End:            d.End,
			Locator:        Locate(src, text, anchors, d),
		}
	}
	return out
}

// ChunkID derives a stable chunk id from its document, ordinal and content.
func ChunkID(docID string, ordinal int, content string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"\x00"+strconv.Itoa(ordinal)+"\x00"+content)).String()
}

// Locate builds the citation locator of d from the source reference.
// It returns the zero Locator when the source cannot produce a valid one.
func Locate(src knowledge.Source, text string, anchors []knowledge.Anchor, d chunk.Draft) locator.Locator {
	var (
		loc locator.Locator
		err error
	)
	switch src.Kind {
	case locator.KindHTML:
		loc, err = locator.NewHTML(locator.HTML{URL: src.URL, Anchor: nearestAnchor(text, anchors, d)})
	case locator.KindWeb:
		loc, err = locator.NewWeb(locator.Web{URL: src.URL, CrawlDepth: src.CrawlDepth})
	case locator.KindDOCX:
		loc, err = locator.NewDOCX(locator.DOCX{
			ParagraphIndex: len(paragraphs(text, span{0, d.Start})),
			HeadingPath:    d.HeadingPath,
		})
	case locator.KindPDFText:
		page, first, last := pageLines(text, d.Start, d.End)
		loc, err = locator.NewPDFText(locator.PDFText{Page: page, LineStart: &first, LineEnd: &last})
	case locator.KindPDFOCR:
		page, first, _ := pageLines(text, d.Start, d.End)
		loc, err = locator.NewPDFOCR(locator.PDFOCR{
			Page:          page,
			ConfidenceOCR: pageConfidence(src.PageConfidence, page),
			LineStart:     &first,
		})
	default:
		return locator.Locator{}
	}
	if err != nil {
		return locator.Locator{}
	}
	return loc
}

// nearestAnchor returns the id of the last anchor whose text occurs before the end of d.
func nearestAnchor(text string, anchors []knowledge.Anchor, d chunk.Draft) string {
	best, bestPos := "", -1
	for _, a := range anchors {
		if a.Text == "" {
			continue
		}
		pos := strings.Index(text, a.Text)
		if pos >= 0 && pos < d.End && pos > bestPos {
			best, bestPos = a.ID, pos
		}
	}
	return best
}

// pageLines returns the 1-based page of start, counted by form feeds, and the
// 1-based lines of start and end within that page. Blank lines opening a page
// are not counted.
func pageLines(text string, start, end int) (page, first, last int) {
	page = 1 + strings.Count(text[:start], "\f")
	pageStart := strings.LastIndexByte(text[:start], '\f') + 1
	for pageStart < start && text[pageStart] == '\n' {
		pageStart++
	}
	first = 1 + strings.Count(text[pageStart:start], "\n")
	last = first + strings.Count(text[start:end], "\n")
	return page, first, last
}

func pageConfidence(conf []float64, page int) float64 {
	if page-1 < len(conf) {
		return conf[page-1]
	}
	if len(conf) == 0 {
		return 0
	}
	var sum float64
	for _, c := range conf {
		sum += c
	}
	return sum / float64(len(conf))
}
