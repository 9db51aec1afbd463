package chunker

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "co": true,
	"no": true, "fig": true,
}

// sentenceChunks packs whole sentences into chunks of at most size runes and
// carries trailing sentences (no more than overlap runes) into the next chunk.
func sentenceChunks(text []rune, size, overlap int) []span {
	var sents []span
	for _, s := range sentenceSpans(text, 0, len(text)) {
		if s.end-s.start > size {
			sents = append(sents, recursiveSpans(text, s.start, s.end, size, 0)...)
			continue
		}
		sents = append(sents, s)
	}

	var out []span
	carry := 0
	for i := 0; i < len(sents); {
		first := i - carry
		for first < i && sents[i].end-sents[first].start > size {
			first++
		}
		j := i + 1
		for j < len(sents) && sents[j].end-sents[first].start <= size {
			j++
		}
		out = append(out, span{sents[first].start, sents[j-1].end})
		if j >= len(sents) {
			break
		}

		// Never carry every sentence of the chunk; the next one must start later.
		c := 0
		for c < j-first-1 && sents[j-1].end-sents[j-1-c].start <= overlap {
			c++
		}
		carry = c
		i = j
	}
	return out
}

// sentenceSpans segments [lo, hi) into sentences that tile the range. Each
// sentence keeps its trailing whitespace.
func sentenceSpans(text []rune, lo, hi int) []span {
	var out []span
	start := lo
	for i := lo; i < hi; {
		switch r := text[i]; {
		case r == '.' || r == '!' || r == '?':
			j := i + 1
			for j < hi && isCloser(text[j]) {
				j++
			}
			k := j
			for k < hi && unicode.IsSpace(text[k]) {
				k++
			}
			if k > j && k < hi && opensSentence(text[k]) && !(r == '.' && isAbbreviation(text, lo, i)) {
				out = append(out, span{start, k})
				start = k
				i = k
				continue
			}
			i = j
		case r == '\n':
			k := i
			newlines := 0
			for k < hi && unicode.IsSpace(text[k]) {
				if text[k] == '\n' {
					newlines++
				}
				k++
			}
			if newlines >= 2 && k < hi && !isBlank(text[start:i]) {
				out = append(out, span{start, k})
				start = k
			}
			i = k
		default:
			i++
		}
	}
	if start < hi {
		out = append(out, span{start, hi})
	}
	return out
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func opensSentence(r rune) bool {
	switch r {
	case '"', '\'', '(', '“', '‘':
		return true
	}
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// isAbbreviation reports whether the period at dot ends a known abbreviation
// or a single-letter initial.
func isAbbreviation(text []rune, lo, dot int) bool {
	w := dot
	for w > lo && (unicode.IsLetter(text[w-1]) || text[w-1] == '.') {
		w--
	}
	word := strings.ToLower(string(text[w:dot]))
	if word == "" {
		return false
	}
	if len([]rune(word)) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return true
	}
	return abbreviations[word]
}
