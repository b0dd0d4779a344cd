package citation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/lexdex/internal/domain/citation"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
)

const excerptRunes = 160

var (
	abbrevRe = regexp.MustCompile(`\bart\.?\s*(\d)`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// prepared caches the match keys of one source.
type prepared struct {
	src    citation.Source
	raw    string
	folded string
	tokens map[string]struct{}
}

func prepare(sources []citation.Source) []prepared {
	out := make([]prepared, len(sources))
	for i, s := range sources {
		raw := s.Title + " " + s.Content
		folded := canonical(raw)
		out[i] = prepared{src: s, raw: raw, folded: folded, tokens: tokenSet(folded)}
	}
	return out
}

// canonical folds text and spells out the "Art." abbreviation.
func canonical(s string) string {
	return abbrevRe.ReplaceAllString(normalize.Fold(s), "article $1")
}

func tokenSet(folded string) map[string]struct{} {
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// match verifies ref against the sources, trying each tier in order
// across all sources before falling back to the next one.
func match(ref citation.Reference, sources []prepared) citation.Validation {
	v := citation.Validation{Reference: ref, Status: citation.Unverified, Tier: citation.TierNone}

	if ref.Type.IsBracketed() {
		n, err := strconv.Atoi(ref.Number)
		if err == nil && n >= 1 && n <= len(sources) {
			s := sources[n-1].src
			v.Status, v.Tier = citation.Verified, citation.TierExact
			v.SourceIndex, v.DocumentID = s.Index, s.DocumentID
			v.Excerpt = excerpt(s.Content, "")
		}
		return v
	}

	hit := func(p prepared, st citation.Status, tier citation.Tier, needle string) citation.Validation {
		v.Status, v.Tier = st, tier
		v.SourceIndex, v.DocumentID = p.src.Index, p.src.DocumentID
		v.Excerpt = excerpt(p.src.Content, needle)
		return v
	}

	for _, p := range sources {
		if containsWhole(p.raw, ref.Raw) {
			return hit(p, citation.Verified, citation.TierExact, ref.Raw)
		}
	}
	key := canonical(ref.Raw)
	for _, p := range sources {
		if containsWhole(p.folded, key) {
			return hit(p, citation.Verified, citation.TierNormalized, ref.Number)
		}
	}
	numbers := digitsRe.FindAllString(ref.Raw, -1)
	if len(numbers) == 0 {
		return v
	}
	for _, p := range sources {
		if containsAll(p.tokens, numbers) {
			return hit(p, citation.PartialMatch, citation.TierPartial, numbers[0])
		}
	}
	return v
}

// containsWhole reports whether needle occurs in s without running into
// further digits, so "Article 5" does not match inside "Article 52".
func containsWhole(s, needle string) bool {
	if needle == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(needle)
	last, _ := utf8.DecodeLastRuneInString(needle)
	for off := 0; ; {
		i := strings.Index(s[off:], needle)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(needle)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !(unicode.IsDigit(first) && start > 0 && unicode.IsDigit(before)) &&
			!(unicode.IsDigit(last) && end < len(s) && unicode.IsDigit(after)) {
			return true
		}
		off = start + 1
	}
}

func containsAll(set map[string]struct{}, words []string) bool {
	for _, w := range words {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// excerpt returns a window of content around the first occurrence of
// needle, or its head when needle is empty or absent.
func excerpt(content, needle string) string {
	r := []rune(content)
	start := 0
	if needle != "" {
		if i := strings.Index(content, needle); i >= 0 {
			start = max(len([]rune(content[:i]))-excerptRunes/3, 0)
		}
	}
	end := min(start+excerptRunes, len(r))
	out := strings.TrimSpace(string(r[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(r) {
		out += "…"
	}
	return out
}
