package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
)

const anchorTextRunes = 80

// lineBreak marks <br> inside a paragraph until whitespace is collapsed.
const lineBreak = '\u2028'

var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true,
	atom.Template: true, atom.Svg: true, atom.Nav: true, atom.Footer: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.Blockquote: true, atom.Pre: true, atom.Header: true, atom.Main: true,
	atom.Dd: true, atom.Dt: true,
}

// HTML extracts visible text from an HTML page. Block elements become
// paragraphs separated by blank lines; element ids are collected as anchors.
func HTML(data []byte) (Extraction, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return Extraction{}, err
	}

	w := &htmlWriter{}
	w.walk(root)
	w.flush()
	return Extraction{Text: strings.Join(w.paras, "\n\n"), Anchors: w.anchors}, nil
}

type htmlWriter struct {
	cur     strings.Builder
	paras   []string
	anchors []knowledge.Anchor
}

func (w *htmlWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			w.cur.WriteRune(lineBreak)
			return
		}
		if id := attr(n, "id"); id != "" {
			if text := leadingText(n, anchorTextRunes); text != "" {
				w.anchors = append(w.anchors, knowledge.Anchor{ID: id, Text: text})
			}
		}
	}

	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		w.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

func (w *htmlWriter) flush() {
	var lines []string
	for _, l := range strings.Split(w.cur.String(), string(lineBreak)) {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	w.cur.Reset()
	if len(lines) > 0 {
		w.paras = append(w.paras, strings.Join(lines, "\n"))
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// leadingText returns up to limit runes of the whitespace-collapsed text under n.
func leadingText(n *html.Node, limit int) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if sb.Len() > limit*4 {
			return
		}
		if c.Type == html.ElementNode && skipped[c.DataAtom] {
			return
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			collect(ch)
		}
	}
	collect(n)
	text := []rune(strings.Join(strings.Fields(sb.String()), " "))
	if len(text) > limit {
		text = text[:limit]
	}
	return strings.TrimSpace(string(text))
}
