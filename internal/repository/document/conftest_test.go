package document

import (
	"testing"
	"time"

	"github.com/kailas-cloud/lexdex/internal/db/postgres/pgtest"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/domain/locator"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repo, *pgtest.Store) {
	t.Helper()
	s := pgtest.NewStore()
	return New(s), s
}

func testDocument(t *testing.T) *knowledge.Document {
	t.Helper()
	d, err := knowledge.New("doc-1", "Code des obligations", "Article 1 - Texte.", "codes",
		knowledge.Source{Kind: locator.KindPDFText, ObjectKey: "codes/coc.pdf"}, testNow)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	return d
}

// documentRow renders d the way Postgres would return it.
func documentRow(t *testing.T, d *knowledge.Document) []any {
	t.Helper()
	vals, err := documentValues(d)
	if err != nil {
		t.Fatalf("document values: %v", err)
	}
	return vals
}
