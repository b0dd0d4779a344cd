package search

import (
	"testing"

	"github.com/kailas-cloud/lexdex/internal/db/postgres/pgtest"
)

func newTestRepo(t *testing.T) (*Repo, *pgtest.Store) {
	t.Helper()
	s := pgtest.NewStore()
	return New(s), s
}

func hasArg(args []any, want any) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
