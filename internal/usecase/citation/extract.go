package citation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kailas-cloud/lexdex/internal/domain/citation"
)

var (
	bracketedRe = regexp.MustCompile(`(?i)\[(source|kb|juris)-?(\d+)\]`)
	articleFRRe = regexp.MustCompile(`(?i)\b(?:article|art\.)\s*(\d+)(?:\s+(bis|ter|quater))?\b`)
	articleARRe = regexp.MustCompile(`(?:الفصل|المادة|الفقرة)\s+(\d+)(?:\s+(مكرر|ثالثا|رابعا))?`)
	statuteFRRe = regexp.MustCompile(`(?i)(?:loi(?:\s+organique)?|décret|decret)\s*(?:n[°o]?\.?\s*)?(\d{4})-(\d+)`)
	statuteARRe = regexp.MustCompile(`القانون(?:\s+(?:الأساسي|الاساسي))?\s+(?:عدد|رقم)\s+(\d+)(?:\s+لسنة\s+(\d{4}))?`)
)

// Extract finds bracketed tags, articles and statutes in text, ordered by
// position. Malformed tags such as [Source] are ignored.
func Extract(text string) []citation.Reference {
	var refs []citation.Reference
	for _, m := range bracketedRe.FindAllStringSubmatchIndex(text, -1) {
		refs = append(refs, citation.Reference{
			Type:     citation.Type(strings.ToLower(text[m[2]:m[3]])),
			Number:   text[m[4]:m[5]],
			Raw:      text[m[0]:m[1]],
			Position: m[0],
		})
	}
	for _, re := range []*regexp.Regexp{articleFRRe, articleARRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			refs = append(refs, citation.Reference{
				Type:     citation.TypeArticle,
				Number:   text[m[2]:m[3]],
				Raw:      text[m[0]:m[1]],
				Position: m[0],
			})
		}
	}
	for _, m := range statuteFRRe.FindAllStringSubmatchIndex(text, -1) {
		refs = append(refs, citation.Reference{
			Type:     citation.TypeStatute,
			Year:     text[m[2]:m[3]],
			Number:   text[m[4]:m[5]],
			Raw:      text[m[0]:m[1]],
			Position: m[0],
		})
	}
	for _, m := range statuteARRe.FindAllStringSubmatchIndex(text, -1) {
		r := citation.Reference{
			Type:     citation.TypeStatute,
			Number:   text[m[2]:m[3]],
			Raw:      text[m[0]:m[1]],
			Position: m[0],
		}
		if m[4] >= 0 {
			r.Year = text[m[4]:m[5]]
		}
		refs = append(refs, r)
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Position < refs[j].Position })
	return refs
}
