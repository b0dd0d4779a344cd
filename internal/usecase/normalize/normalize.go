// Package normalize cleans extracted legal text and detects its language.
//
// Normalization is idempotent: Normalize(Normalize(x).Text) == Normalize(x).
// Form feeds are kept on their own line, between blank lines, as page separators.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

// LanguageThreshold is the script share above which a text is tagged monolingual.
const LanguageThreshold = 0.7

// Options tune optional normalization steps.
type Options struct {
	// StripTashkeel removes Arabic short-vowel marks from stored text.
	StripTashkeel bool
}

// Result is the output of normalization.
type Result struct {
	Text     string
	Language knowledge.Language
}

// Normalizer applies the normalization steps in a fixed order.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

var (
	frArticleRe = regexp.MustCompile(`(?i)\bart(?:\.\s*|\s+)(\d)`)
	arArticleRe = regexp.MustCompile(`(^|[^\p{L}])فصل\s+(\d)`)
	dotLeaderRe = regexp.MustCompile(`(?:\.{5,}|…{3,})[ \t]*\d*`)
	spacesRe    = regexp.MustCompile(`[ \t]+`)

	boilerplateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:journal officiel de la r[ée]publique tunisienne|الرائد الرسمي للجمهورية التونسية)`),
		regexp.MustCompile(`^(?:[-–—]\s*)?\d{1,4}(?:\s*[-–—])?$`),
		regexp.MustCompile(`(?i)^page\s+\d+\s*(?:sur|/|de)\s*\d+`),
		regexp.MustCompile(`^صفحة\s*\d+`),
		regexp.MustCompile(`^[-=_*]{3,}$`),
	}
)

// Normalize runs every normalization step and tags the language.
func (n *Normalizer) Normalize(raw string) Result {
	text := n.Text(raw)
	return Result{Text: text, Language: DetectLanguage(text)}
}

// Text returns the normalized text without language detection.
func (n *Normalizer) Text(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(mapRune, s)
	if n.opts.StripTashkeel {
		s = StripTashkeel(s)
	}
	// dot leaders first: removing them can expose a punctuation gap or an article marker
	s = dotLeaderRe.ReplaceAllString(s, " ")
	s = spaceArabicPunctuation(s)

	var out []string
	blank := true // suppress leading blank lines
	for _, line := range splitLines(s) {
		if line == "\f" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			out = append(out, "\f", "")
			blank = true
			continue
		}
		line = canonicalArticles(strings.Trim(spacesRe.ReplaceAllString(line, " "), " "))
		if isBoilerplate(line) {
			continue
		}
		if line == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Trim(strings.Join(out, "\n"), "\n ")
}

// splitLines splits on newlines and isolates form feeds as their own lines.
func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if !strings.Contains(l, "\f") {
			lines = append(lines, l)
			continue
		}
		for i, p := range strings.Split(l, "\f") {
			if i > 0 {
				lines = append(lines, "\f")
			}
			if strings.TrimSpace(p) != "" {
				lines = append(lines, p)
			}
		}
	}
	return lines
}

func isBoilerplate(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range boilerplateRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// mapRune removes invisible controls and unifies Arabic letter and digit variants.
func mapRune(r rune) rune {
	switch {
	case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
		return -1
	case r == '\u200E' || r == '\u200F' || (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069'):
		return -1
	case r == '\u00A0' || r == '\u202F':
		return ' '
	case r == '\u0623' || r == '\u0625' || r == '\u0622' || r == '\u0671':
		return '\u0627'
	case r == '\u0649':
		return '\u064A'
	case r >= '\u0660' && r <= '\u0669':
		return '0' + (r - '\u0660')
	case r >= '\u06F0' && r <= '\u06F9':
		return '0' + (r - '\u06F0')
	}
	return r
}

func isArabicPunct(r rune) bool { return r == '\u060C' || r == '\u061B' || r == '\u061F' }

// spaceArabicPunctuation removes horizontal space before Arabic punctuation
// and leaves exactly one space after it when text follows on the same line.
func spaceArabicPunctuation(s string) string {
	if !strings.ContainsAny(s, "\u060C\u061B\u061F") {
		return s
	}
	rs := []rune(s)
	out := make([]rune, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if !isArabicPunct(r) {
			out = append(out, r)
			continue
		}
		for len(out) > 0 && (out[len(out)-1] == ' ' || out[len(out)-1] == '\t') {
			out = out[:len(out)-1]
		}
		out = append(out, r)
		j := i + 1
		for j < len(rs) && (rs[j] == ' ' || rs[j] == '\t') {
			j++
		}
		if j < len(rs) && rs[j] != '\n' && rs[j] != '\f' && !isArabicPunct(rs[j]) {
			out = append(out, ' ')
		}
		i = j - 1
	}
	return string(out)
}

func canonicalArticles(s string) string {
	s = frArticleRe.ReplaceAllString(s, "Article $1")
	return arArticleRe.ReplaceAllString(s, "${1}الفصل $2")
}

// StripTashkeel removes Arabic diacritics (harakat, tanwin, shadda, sukun, dagger alef)
// and the tatweel elongation character.
func StripTashkeel(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '\u064B' && r <= '\u065F') || r == '\u0670' || (r >= '\u06D6' && r <= '\u06DC') || r == '\u0640' {
			return -1
		}
		return r
	}, s)
}

// DetectLanguage tags text as ar, fr or mixed by Arabic versus Latin letter share.
// Text without letters defaults to fr.
func DetectLanguage(text string) knowledge.Language {
	var arabic, latin int
	for _, r := range text {
		switch {
		case isArabicLetter(r):
			arabic++
		case isLatinLetter(r):
			latin++
		}
	}
	total := arabic + latin
	if total == 0 {
		return knowledge.French
	}
	switch {
	case float64(arabic)/float64(total) > LanguageThreshold:
		return knowledge.Arabic
	case float64(latin)/float64(total) > LanguageThreshold:
		return knowledge.French
	default:
		return knowledge.Mixed
	}
}

func isArabicLetter(r rune) bool {
	return (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F) || (r >= 0x08A0 && r <= 0x08FF) ||
		(r >= 0xFB50 && r <= 0xFDFF) || (r >= 0xFE70 && r <= 0xFEFF)
}

func isLatinLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= 0xC0 && r <= 0xFF && unicode.IsLetter(r))
}

// Hash returns the hex sha256 of normalized text.
func Hash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
