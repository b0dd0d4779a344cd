// Package extract turns stored source objects into raw text.
package extract

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// Extraction is the text pulled out of a source object.
type Extraction struct {
	Text    string
	Anchors []knowledge.Anchor
}

// Service fetches and extracts source objects.
type Service struct {
	fetcher ObjectFetcher
}

// New creates an extraction service.
func New(fetcher ObjectFetcher) *Service {
	return &Service{fetcher: fetcher}
}

// Extract fetches src.ObjectKey and extracts its text. The declared content
// type wins over the one reported by the store.
func (s *Service) Extract(ctx context.Context, src knowledge.Source) (Extraction, error) {
	if src.ObjectKey == "" {
		return Extraction{}, domain.NewReasonError(domain.ReasonExtractionFailed, "source has no object key")
	}
	if s.fetcher == nil {
		return Extraction{}, domain.NewReasonError(domain.ReasonExtractionFailed, "object storage is not configured")
	}
	data, stored, err := s.fetcher.Fetch(ctx, src.ObjectKey)
	if err != nil {
		return Extraction{}, fmt.Errorf("fetch %s: %w", src.ObjectKey, err)
	}
	ct := src.ContentType
	if ct == "" {
		ct = stored
	}
	return Bytes(ct, data)
}

// Bytes extracts text from data according to contentType.
func Bytes(contentType string, data []byte) (Extraction, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if !utf8.Valid(data) {
		return Extraction{}, domain.Reasonf(domain.ReasonExtractionFailed, "%s content is not valid UTF-8", mediaType)
	}

	var out Extraction
	switch mediaType {
	case "text/plain", "text/markdown":
		out.Text = string(data)
	case "text/html", "application/xhtml+xml":
		out, err = HTML(data)
		if err != nil {
			return Extraction{}, domain.Reasonf(domain.ReasonExtractionFailed, "parse html: %v", err)
		}
	default:
		return Extraction{}, domain.Reasonf(domain.ReasonExtractionFailed, "unsupported content type %q", contentType)
	}

	if strings.TrimSpace(out.Text) == "" {
		return Extraction{}, domain.NewReasonError(domain.ReasonExtractionFailed, "no text extracted")
	}
	return out, nil
}
