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

const (
	minClaimRunes  = 10
	minTermRunes   = 4
	supportOverlap = 0.3
)

var (
	sentenceRe  = regexp.MustCompile(`[.،؛!?\n]+`)
	claimRefRe  = regexp.MustCompile(`(?i)(?:الفصل|المادة|article|art\.)\s*(\d+)`)
	claimTermRe = regexp.MustCompile(`\S+`)
)

// verifyClaims checks every sentence carrying a bracketed tag against the
// sources it cites.
func verifyClaims(answer string, sources []prepared) []citation.Claim {
	var claims []citation.Claim
	for _, sentence := range sentenceRe.Split(answer, -1) {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) <= minClaimRunes {
			continue
		}
		tags := bracketedRe.FindAllStringSubmatch(sentence, -1)
		if len(tags) == 0 {
			continue
		}
		claims = append(claims, verifyClaim(sentence, tags, sources))
	}
	return claims
}

func verifyClaim(sentence string, tags [][]string, sources []prepared) citation.Claim {
	c := citation.Claim{Sentence: sentence}
	terms := claimTerms(bracketedRe.ReplaceAllString(sentence, " "))
	var articles []string
	for _, m := range claimRefRe.FindAllStringSubmatch(sentence, -1) {
		articles = append(articles, m[1])
	}

	for _, tag := range tags {
		n, err := strconv.Atoi(tag[2])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		p := sources[n-1]
		if c.SourceIndex == 0 {
			c.SourceIndex = p.src.Index
		}
		if len(terms) == 0 {
			c.Supported, c.Overlap, c.SourceIndex = true, 1, p.src.Index
			return c
		}
		var found int
		for _, t := range terms {
			if strings.Contains(p.folded, t) {
				found++
			}
		}
		overlap := float64(found) / float64(len(terms))
		if overlap > c.Overlap {
			c.Overlap = overlap
		}
		if overlap >= supportOverlap || (len(articles) > 0 && containsAll(p.tokens, articles)) {
			c.Supported, c.SourceIndex = true, p.src.Index
			return c
		}
	}
	return c
}

// claimTerms returns the folded words of s longer than three runes that
// carry at least one letter.
func claimTerms(s string) []string {
	var out []string
	for _, w := range claimTermRe.FindAllString(normalize.Fold(s), -1) {
		w = strings.TrimFunc(w, func(r rune) bool { return !(unicode.IsLetter(r) || unicode.IsDigit(r)) })
		if utf8.RuneCountInString(w) < minTermRunes || strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}
