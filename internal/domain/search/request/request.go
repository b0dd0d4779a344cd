package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// Retrieval parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in bytes.
	MaxQueryLength    = 4096
	DefaultMaxResults = 10
	MaxMaxResults     = 50
)

// Filters restrict retrieval to a category and/or a language.
type Filters struct {
	Category *knowledge.Category
	Language *knowledge.Language
}

// Request is a validated retrieval query.
type Request struct {
	query      string
	filters    Filters
	maxResults int
}

// New validates and normalizes retrieval parameters.
// maxResults defaults to 10 and is clamped to 50.
func New(query string, filters Filters, maxResults int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d bytes): %w", MaxQueryLength, domain.ErrValidation)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxMaxResults {
		maxResults = MaxMaxResults
	}
	return Request{query: query, filters: filters, maxResults: maxResults}, nil
}

// Parse builds a request from raw filter strings, as received over the wire.
func Parse(query, category, language string, maxResults int) (Request, error) {
	var f Filters
	if category != "" {
		c, ok := knowledge.ParseCategory(category)
		if !ok {
			return Request{}, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
		}
		f.Category = &c
	}
	if language != "" {
		l, ok := knowledge.ParseLanguage(language)
		if !ok {
			return Request{}, fmt.Errorf("unknown language %q: %w", language, domain.ErrValidation)
		}
		f.Language = &l
	}
	return New(query, f, maxResults)
}

// Query returns the question text.
func (r *Request) Query() string { return r.query }

// Filters returns the category/language filters.
func (r *Request) Filters() Filters { return r.filters }

// MaxResults returns the maximum number of hits to return.
func (r *Request) MaxResults() int { return r.maxResults }
