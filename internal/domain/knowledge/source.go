package knowledge

import (
	"fmt"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
)

// Source describes where a document came from and how to locate passages in it.
type Source struct {
	Kind           locator.Kind `json:"kind"`
	URL            string       `json:"url,omitempty"`
	ObjectKey      string       `json:"object_key,omitempty"`
	ContentType    string       `json:"content_type,omitempty"`
	CrawlDepth     *int         `json:"crawl_depth,omitempty"`
	PageConfidence []float64    `json:"page_confidence,omitempty"`
	Anchors        []Anchor     `json:"anchors,omitempty"`
}

// Anchor is an HTML element id with the leading text of the element.
type Anchor struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Validate checks the source reference for the fields its kind needs.
func (s Source) Validate() error {
	switch s.Kind {
	case locator.KindHTML, locator.KindWeb:
		if s.URL == "" {
			return fmt.Errorf("source.url is required for %s sources: %w", s.Kind, domain.ErrValidation)
		}
	case locator.KindDOCX, locator.KindPDFText, locator.KindPDFOCR:
	default:
		return fmt.Errorf("unknown source kind %q: %w", s.Kind, domain.ErrValidation)
	}
	return nil
}
