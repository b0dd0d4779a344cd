package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New("  nullité du contrat ", Filters{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "nullité du contrat" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.MaxResults() != DefaultMaxResults {
		t.Errorf("MaxResults() = %d, want %d", r.MaxResults(), DefaultMaxResults)
	}
}

func TestNew_ClampsMaxResults(t *testing.T) {
	r, err := New("q", Filters{}, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MaxResults() != MaxMaxResults {
		t.Errorf("MaxResults() = %d, want %d", r.MaxResults(), MaxMaxResults)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", strings.Repeat("a", MaxQueryLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.query, Filters{}, 10); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("q", "code", "ar", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := r.Filters()
	if f.Category == nil || *f.Category != knowledge.Codes {
		t.Errorf("category = %v, want codes (alias)", f.Category)
	}
	if f.Language == nil || *f.Language != knowledge.Arabic {
		t.Errorf("language = %v", f.Language)
	}

	if _, err := Parse("q", "cuisine", "", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown category: %v", err)
	}
	if _, err := Parse("q", "", "en", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown language: %v", err)
	}
}
