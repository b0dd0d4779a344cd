package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a half-open byte range into the chunked text.
type span struct {
	start, end int
}

func (s span) empty() bool { return s.end <= s.start }

var sentenceEndRe = regexp.MustCompile(`([.!?\x{061F}\x{061B}]+["»)\]]*)\s+`)

// trim shrinks s past leading and trailing whitespace.
func trim(text string, s span) span {
	for s.start < s.end {
		r, size := utf8.DecodeRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.start += size
	}
	for s.end > s.start {
		r, size := utf8.DecodeLastRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.end -= size
	}
	return s
}

// line is one line of the text with its trimmed content.
type line struct {
	span
	text string
}

// lines splits s into lines. Whitespace-only lines have empty text.
func lines(text string, s span) []line {
	var out []line
	pos := s.start
	for pos < s.end {
		end, next := s.end, s.end
		if i := strings.IndexByte(text[pos:s.end], '\n'); i >= 0 {
			end, next = pos+i, pos+i+1
		}
		t := trim(text, span{pos, end})
		out = append(out, line{span: t, text: text[t.start:t.end]})
		pos = next
	}
	return out
}

// paragraphs returns the runs of non-blank lines in s. Form-feed lines are blank.
func paragraphs(text string, s span) []span {
	var out []span
	cur := span{start: -1}
	for _, l := range lines(text, s) {
		if l.text == "" {
			if cur.start >= 0 {
				out = append(out, cur)
				cur = span{start: -1}
			}
			continue
		}
		if cur.start < 0 {
			cur.start = l.start
		}
		cur.end = l.end
	}
	if cur.start >= 0 {
		out = append(out, cur)
	}
	return out
}

// sentences splits a paragraph at terminal punctuation followed by whitespace.
func sentences(text string, p span) []span {
	sub := text[p.start:p.end]
	var out []span
	start := 0
	for _, m := range sentenceEndRe.FindAllStringSubmatchIndex(sub, -1) {
		if s := trim(text, span{p.start + start, p.start + m[3]}); !s.empty() {
			out = append(out, s)
		}
		start = m[1]
	}
	if s := trim(text, span{p.start + start, p.end}); !s.empty() {
		out = append(out, s)
	}
	return out
}

// allSentences returns the sentences of every paragraph in s.
func allSentences(text string, s span) []span {
	var out []span
	for _, p := range paragraphs(text, s) {
		out = append(out, sentences(text, p)...)
	}
	return out
}

// words returns the whitespace-separated words in s.
func words(text string, s span) []span {
	var out []span
	start := -1
	for i, r := range text[s.start:s.end] {
		pos := s.start + i
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{start, pos})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = pos
		}
	}
	if start >= 0 {
		out = append(out, span{start, s.end})
	}
	return out
}
