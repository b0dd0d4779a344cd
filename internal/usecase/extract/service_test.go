package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
)

func TestExtract_PlainText(t *testing.T) {
	f := &mockFetcher{data: []byte("Article 1\nTexte."), contentType: "text/plain; charset=utf-8"}
	svc := New(f)

	out, err := svc.Extract(context.Background(), knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "docs/a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "Article 1\nTexte." {
		t.Errorf("text = %q", out.Text)
	}
	if len(f.keys) != 1 || f.keys[0] != "docs/a.txt" {
		t.Errorf("fetched keys = %v", f.keys)
	}
}

func TestExtract_DeclaredContentTypeWins(t *testing.T) {
	f := &mockFetcher{data: []byte("<p>Bonjour</p>"), contentType: "application/octet-stream"}
	out, err := New(f).Extract(context.Background(), knowledge.Source{
		Kind: locator.KindHTML, URL: "https://x.tn", ObjectKey: "k", ContentType: "text/html",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "Bonjour" {
		t.Errorf("text = %q", out.Text)
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name string
		f    *mockFetcher
		src  knowledge.Source
		want error
	}{
		{
			name: "unsupported type",
			f:    &mockFetcher{data: []byte("%PDF-1.4"), contentType: "application/pdf"},
			src:  knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "k"},
			want: domain.ErrExtractionFailed,
		},
		{
			name: "empty text",
			f:    &mockFetcher{data: []byte("  \n "), contentType: "text/plain"},
			src:  knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "k"},
			want: domain.ErrExtractionFailed,
		},
		{
			name: "invalid utf8",
			f:    &mockFetcher{data: []byte{0xff, 0xfe, 0x41}, contentType: "text/plain"},
			src:  knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "k"},
			want: domain.ErrExtractionFailed,
		},
		{
			name: "no object key",
			f:    &mockFetcher{},
			src:  knowledge.Source{Kind: locator.KindPDFText},
			want: domain.ErrExtractionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.f).Extract(context.Background(), tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !domain.IsStructural(err) {
				t.Errorf("extraction failures must be structural")
			}
		})
	}
}

func TestExtract_FetchErrorIsNotStructural(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := New(&mockFetcher{err: boom}).Extract(context.Background(),
		knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "k"})
	if !errors.Is(err, boom) || domain.IsStructural(err) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHTML(t *testing.T) {
	page := `<html><head><title>T</title><script>var x = 1;</script></head>
<body><nav>Menu</nav>
<h1 id="top">Code des obligations</h1>
<div><p id="art-1">Article 1 : Les   obligations
dérivent des conventions.</p><p>Article 2<br>Suite</p></div>
<footer>Copyright</footer></body></html>`

	out, err := HTML([]byte(page))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Code des obligations\n\nArticle 1 : Les obligations dérivent des conventions.\n\nArticle 2\nSuite"
	if out.Text != want {
		t.Errorf("text =\n%q\nwant\n%q", out.Text, want)
	}
	if len(out.Anchors) != 2 || out.Anchors[0].ID != "top" || out.Anchors[1].ID != "art-1" {
		t.Fatalf("anchors = %+v", out.Anchors)
	}
	if out.Anchors[1].Text != "Article 1 : Les obligations dérivent des conventions." {
		t.Errorf("anchor text = %q", out.Anchors[1].Text)
	}
}

func TestExtract_NoObjectStorage(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "k"})
	if domain.ReasonOf(err) != domain.ReasonExtractionFailed {
		t.Errorf("reason = %q, want extraction_failed", domain.ReasonOf(err))
	}
}
