package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns a match key for s: letter variants unified, accents and
// tashkeel removed, lowercased, whitespace collapsed to single spaces.
func Fold(s string) string {
	s = strings.Map(mapRune, s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = StripTashkeel(folded)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Tokens splits folded text into Arabic, Latin and digit runs longer than one rune.
func Tokens(s string) []string {
	folded := Fold(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// CacheKeyText canonicalizes text for embedding cache keys: NFC with
// whitespace collapsed. Case and diacritics are kept because they change vectors.
func CacheKeyText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
