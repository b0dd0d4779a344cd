package chunking

func (e *Engine) tokens(text string, s span) int {
	return e.counter.Count(text[s.start:s.end])
}

// units breaks s into paragraphs, sentences or word runs no larger than target.
func (e *Engine) units(text string, s span, target int) []span {
	var out []span
	for _, p := range paragraphs(text, s) {
		if e.tokens(text, p) <= target {
			out = append(out, p)
			continue
		}
		for _, snt := range sentences(text, p) {
			if e.tokens(text, snt) <= target {
				out = append(out, snt)
				continue
			}
			out = append(out, e.hardSplit(text, snt, target)...)
		}
	}
	return out
}

// hardSplit packs words into runs of at most target tokens. A single word
// larger than target becomes its own run.
func (e *Engine) hardSplit(text string, s span, target int) []span {
	ws := words(text, s)
	if len(ws) == 0 {
		return nil
	}
	var out []span
	cur := ws[0]
	for _, w := range ws[1:] {
		if e.tokens(text, span{cur.start, w.end}) > target {
			out = append(out, cur)
			cur = w
			continue
		}
		cur.end = w.end
	}
	return append(out, cur)
}

// adaptive greedily packs units into chunks of at most p.Target tokens, seeds
// each chunk with up to overlap tokens from the previous one and merges a
// final runt below p.Min into its predecessor.
func (e *Engine) adaptive(text string, s span, p Params, overlap int) []span {
	units := e.units(text, s, p.Target)
	if len(units) == 0 {
		return nil
	}

	var chunks []span
	cur := units[0]
	for _, u := range units[1:] {
		if e.tokens(text, span{cur.start, u.end}) <= p.Target {
			cur.end = u.end
			continue
		}
		chunks = append(chunks, cur)
		start := u.start
		if overlap > 0 {
			if os := e.overlapStart(text, cur, overlap); os < u.start &&
				e.tokens(text, span{os, u.end}) <= p.Target {
				start = os
			}
		}
		cur = span{start, u.end}
	}
	chunks = append(chunks, cur)

	if n := len(chunks); n > 1 && e.tokens(text, chunks[n-1]) < p.Min {
		chunks[n-2].end = chunks[n-1].end
		chunks = chunks[:n-1]
	}
	return chunks
}

// overlapStart returns where the next chunk should start so that it repeats
// the trailing whole sentences of prev, up to overlap tokens. Without a
// fitting sentence it falls back to trailing words. prev.end means no overlap.
// The first sentence or word of prev is never repeated.
func (e *Engine) overlapStart(text string, prev span, overlap int) int {
	start := prev.end
	sents := allSentences(text, prev)
	for i := len(sents) - 1; i >= 1; i-- {
		if e.tokens(text, span{sents[i].start, prev.end}) > overlap {
			break
		}
		start = sents[i].start
	}
	if start < prev.end {
		return start
	}

	ws := words(text, prev)
	for i := len(ws) - 1; i >= 1; i-- {
		if e.tokens(text, span{ws[i].start, prev.end}) > overlap {
			break
		}
		start = ws[i].start
	}
	return start
}
