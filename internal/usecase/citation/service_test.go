package citation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/citation"
	"github.com/kailas-cloud/lexdex/internal/domain/drift"
)

// --- Mocks ---

type mockRecorder struct {
	checks []drift.AnswerCheck
	err    error
}

func (m *mockRecorder) RecordAnswerCheck(_ context.Context, c drift.AnswerCheck) error {
	m.checks = append(m.checks, c)
	return m.err
}

var testSources = []citation.Source{
	{DocumentID: "doc-coc", Title: "Code des obligations", Content: "Article 242 : Les conventions légalement formées tiennent lieu de loi."},
	{DocumentID: "doc-cp", Title: "المجلة الجزائية", Content: "الفصل 218 : يعاقب بالسجن مدة خمسة أعوام."},
	{DocumentID: "doc-loi", Title: "Loi n° 2016-48", Content: "relative aux banques, voir art. 12 et 14 de la loi."},
}

func newTestService(rec AnswerRecorder) *Service {
	s := New(rec, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestValidate_Tiers(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		status citation.Status
		tier   citation.Tier
		doc    string
	}{
		{"bracketed in range", "Voir [Source-2].", citation.Verified, citation.TierExact, "doc-cp"},
		{"bracketed out of range", "Voir [KB-9].", citation.Unverified, citation.TierNone, ""},
		{"exact article", "Selon l'Article 242 du code.", citation.Verified, citation.TierExact, "doc-coc"},
		{"case folded", "selon l'ARTICLE 242.", citation.Verified, citation.TierNormalized, "doc-coc"},
		{"abbreviation", "Voir Article 12 de la loi.", citation.Verified, citation.TierNormalized, "doc-loi"},
		{"arabic exact", "طبق الفصل 218 من المجلة", citation.Verified, citation.TierExact, "doc-cp"},
		{"numbers only", "Le Décret n° 2016-48 dispose.", citation.PartialMatch, citation.TierPartial, "doc-loi"},
		{"absent", "Article 999 du code.", citation.Unverified, citation.TierNone, ""},
		{"article number prefix", "Selon l'Article 24 du code.", citation.Unverified, citation.TierNone, ""},
		{"arabic article number prefix", "طبق الفصل 21 من المجلة", citation.Unverified, citation.TierNone, ""},
		{"law number prefix", "Voir la Loi n° 2016-4.", citation.Unverified, citation.TierNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := newTestService(nil).Validate(context.Background(), tt.answer, testSources)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.Total != 1 {
				t.Fatalf("total = %d, want 1 (%+v)", rep.Total, rep.Validations)
			}
			v := rep.Validations[0]
			if v.Status != tt.status || v.Tier != tt.tier || v.DocumentID != tt.doc {
				t.Errorf("validation = %s/%s/%s, want %s/%s/%s",
					v.Status, v.Tier, v.DocumentID, tt.status, tt.tier, tt.doc)
			}
			wantWarn := tt.status != citation.Verified
			if (len(rep.Warnings) == 1) != wantWarn {
				t.Errorf("warnings = %+v", rep.Warnings)
			}
		})
	}
}

func TestContainsWhole(t *testing.T) {
	tests := []struct {
		s, needle string
		want      bool
	}{
		{"Article 52 du code", "Article 5", false},
		{"Article 52 puis Article 5.", "Article 5", true},
		{"Loi n° 2016-71", "Loi n° 2016-7", false},
		{"Loi n° 2016-7, art. 3", "Loi n° 2016-7", true},
		{"n° 12016-7", "2016-7", false},
		{"الفصل 218", "الفصل 21", false},
		{"Code pénal", "Code pénal", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := containsWhole(tt.s, tt.needle); got != tt.want {
			t.Errorf("containsWhole(%q, %q) = %v, want %v", tt.s, tt.needle, got, tt.want)
		}
	}
}

func TestValidate_WarningsNeverBlock(t *testing.T) {
	rep, err := newTestService(nil).Validate(context.Background(), "Article 999 et [Source-7]", testSources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.Flagged() || rep.Unverified != 2 {
		t.Fatalf("report = %+v", rep)
	}
	for _, w := range rep.Warnings {
		if w.Code != string(domain.ReasonCitationUnverified) {
			t.Errorf("warning code = %q", w.Code)
		}
	}
}

func TestValidate_Claims(t *testing.T) {
	answer := "Les conventions légalement formées tiennent lieu de loi entre les parties [Source-1]. " +
		"La prescription acquisitive exige une possession trentenaire paisible [Source-1]. " +
		"Une phrase sans citation mais assez longue."
	rep, err := newTestService(nil).Validate(context.Background(), answer, testSources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Claims) != 2 {
		t.Fatalf("got %d claims, want 2: %+v", len(rep.Claims), rep.Claims)
	}
	if !rep.Claims[0].Supported || rep.Claims[0].SourceIndex != 1 {
		t.Errorf("first claim = %+v, want supported by source 1", rep.Claims[0])
	}
	if rep.Claims[1].Supported || rep.UnsupportedClaims != 1 {
		t.Errorf("second claim = %+v, want unsupported", rep.Claims[1])
	}
}

func TestValidate_ClaimByArticleNumber(t *testing.T) {
	answer := "تنص أحكام المجلة المذكورة على عقوبة مشددة للمرتكب حسب الفصل 218 [Source-2]"
	rep, err := newTestService(nil).Validate(context.Background(), answer, testSources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Claims) != 1 || !rep.Claims[0].Supported {
		t.Errorf("claims = %+v, want supported by article number", rep.Claims)
	}
}

func TestValidate_RecordsAnswerCheck(t *testing.T) {
	rec := &mockRecorder{err: errors.New("db down")}
	_, err := newTestService(rec).Validate(context.Background(), "Article 242 et Article 999", testSources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.checks) != 1 {
		t.Fatalf("got %d checks, want 1", len(rec.checks))
	}
	c := rec.checks[0]
	if c.References != 2 || c.Unverified != 1 || !c.Flagged {
		t.Errorf("check = %+v", c)
	}
}

func TestValidate_TooManySources(t *testing.T) {
	sources := make([]citation.Source, MaxSources+1)
	if _, err := newTestService(nil).Validate(context.Background(), "x", sources); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("a", 300) + " Article 5 " + strings.Repeat("b", 300)
	ex := excerpt(long, "Article 5")
	if !strings.Contains(ex, "Article 5") || !strings.HasPrefix(ex, "…") || !strings.HasSuffix(ex, "…") {
		t.Errorf("excerpt = %q", ex)
	}
	if got := excerpt("court", ""); got != "court" {
		t.Errorf("excerpt = %q, want whole text", got)
	}
}
