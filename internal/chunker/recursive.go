package chunker

import "unicode"

// boundaryLevels lists cut separators from strongest to weakest. Within a
// level the rightmost qualifying cut wins. Whitespace and the hard cut follow
// as the last two levels.
var boundaryLevels = [][][]rune{
	{[]rune("\n\n")},
	{[]rune("\n")},
	{[]rune(". "), []rune("! "), []rune("? ")},
}

// recursiveSpans cuts [lo, hi) into windows of at most size runes. Each window
// ends at the strongest boundary found in its second half. The next window
// starts overlap runes before the previous cut, but always at least one rune
// after the previous start.
func recursiveSpans(text []rune, lo, hi, size, overlap int) []span {
	var out []span
	start := lo
	for start < hi {
		end := start + size
		if end >= hi {
			out = append(out, span{start, hi})
			break
		}
		cut := findCut(text, start, end)
		out = append(out, span{start, cut})

		next := cut - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// findCut returns the cut position for the window [start, end). The result
// lies in (start, end].
func findCut(text []rune, start, end int) int {
	floor := start + (end-start)/2
	for _, level := range boundaryLevels {
		best := -1
		for _, sep := range level {
			if c := lastCut(text, sep, start, floor, end); c > best {
				best = c
			}
		}
		if best > start {
			return best
		}
	}
	for i := end - 1; i >= start && i+1 >= floor; i-- {
		if unicode.IsSpace(text[i]) && i+1 > start {
			return i + 1
		}
	}
	return end
}

// lastCut finds the rightmost occurrence of sep inside [start, end) whose
// trailing edge is at or after floor, and returns that trailing edge.
func lastCut(text, sep []rune, start, floor, end int) int {
	for i := end - len(sep); i >= start && i+len(sep) >= floor; i-- {
		if hasPrefixAt(text, i, sep) {
			return i + len(sep)
		}
	}
	return -1
}

func hasPrefixAt(text []rune, i int, sep []rune) bool {
	if i < 0 || i+len(sep) > len(text) {
		return false
	}
	for j, r := range sep {
		if text[i+j] != r {
			return false
		}
	}
	return true
}
