package chunking

import (
	"regexp"
	"strings"
)

var (
	frArticleRe = regexp.MustCompile(
		`^(?:Article|ARTICLE|Art\.)\s+(premier|1er|\d+(?:-\d+)*)(?:\s+(bis|ter|quater|quinquies|sexies|septies|octies|nonies|decies)\b)?(?:\s*[:.\-–—]|\s|$)`)
	arArticleRe = regexp.MustCompile(
		`^(?:الفصل|المادة)\s+(\d+(?:-\d+)*)(?:\s+(مكرر))?(?:\s*[:.\-–—]|\s|$)`)

	frHeadingRe = regexp.MustCompile(
		`(?i)^(livre|titre|chapitre|sous-section|section)\s+(premier|premi[eè]re|unique|pr[eé]liminaire|[ivxlc]+|\d+)\b`)
	arHeadingRe = regexp.MustCompile(`^(الكتاب|العنوان|الباب|القسم|الفرع)\s+\S+`)
)

var headingLevels = map[string]int{
	"livre": 0, "titre": 1, "chapitre": 2, "section": 3, "sous-section": 4,
	"الكتاب": 0, "العنوان": 1, "الباب": 2, "القسم": 3, "الفرع": 4,
}

const maxHeadingRunes = 120

// article is one detected article. body is where the text after the marker starts.
type article struct {
	span
	body     int
	number   string
	headings []string
}

type heading struct {
	level int
	text  string
}

// articleNumber parses an article marker line and the byte length of the
// marker. ok is false for other lines.
func articleNumber(l string) (num string, marker int, ok bool) {
	if m := frArticleRe.FindStringSubmatch(l); m != nil {
		num = m[1]
		if num == "premier" || num == "1er" {
			num = "1"
		}
		if m[2] != "" {
			num += " " + m[2]
		}
		return num, len(m[0]), true
	}
	if m := arArticleRe.FindStringSubmatch(l); m != nil {
		num = m[1]
		if m[2] != "" {
			num += " " + m[2]
		}
		return num, len(m[0]), true
	}
	return "", 0, false
}

// headingLevel parses a structural heading line. ok is false for other lines.
func headingLevel(l string) (int, bool) {
	if m := frHeadingRe.FindStringSubmatch(l); m != nil {
		return headingLevels[strings.ToLower(m[1])], true
	}
	if m := arHeadingRe.FindStringSubmatch(l); m != nil {
		return headingLevels[m[1]], true
	}
	return 0, false
}

// articles scans text for article markers. It returns the articles and the
// offset of the first marker or heading, which ends the preamble.
func articles(text string) ([]article, int) {
	var (
		out   []article
		stack []heading
		cur   *article
	)
	preambleEnd := -1
	closeCur := func(end int) {
		if cur == nil {
			return
		}
		cur.span = trim(text, span{cur.start, end})
		out = append(out, *cur)
		cur = nil
	}

	for _, l := range lines(text, span{0, len(text)}) {
		if l.text == "" {
			continue
		}
		if level, ok := headingLevel(l.text); ok {
			closeCur(l.start)
			if preambleEnd < 0 {
				preambleEnd = l.start
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: level, text: clip(l.text, maxHeadingRunes)})
			continue
		}
		if num, marker, ok := articleNumber(l.text); ok {
			closeCur(l.start)
			if preambleEnd < 0 {
				preambleEnd = l.start
			}
			cur = &article{span: span{start: l.start}, body: l.start + marker, number: num, headings: headingPath(stack)}
		}
	}
	closeCur(len(text))

	if len(out) == 0 {
		return nil, -1
	}
	return out, preambleEnd
}

func headingPath(stack []heading) []string {
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.text
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
