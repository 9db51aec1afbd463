package chunker

import "strings"

// FilterOptions selects chunks to drop after splitting.
type FilterOptions struct {
	MinWords int      // Chunks with fewer words are dropped.
	Sections []string // Chunks whose heading path names one of these are dropped.
}

// Filter drops short chunks and chunks under unwanted sections, then
// renumbers the survivors. If every chunk would be dropped the input is
// returned unchanged.
func Filter(chunks []Chunk, opts FilterOptions) ([]Chunk, int) {
	unwanted := make(map[string]bool, len(opts.Sections))
	for _, s := range opts.Sections {
		unwanted[strings.ToLower(strings.TrimSpace(s))] = true
	}

	kept := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if opts.MinWords > 0 && len(strings.Fields(c.Text)) < opts.MinWords {
			continue
		}
		if inUnwanted(c.HeadingPath, unwanted) {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return chunks, 0
	}

	for i := range kept {
		kept[i].Index = i
		kept[i].ID = ChunkID(kept[i].DocumentID, i)
	}
	return kept, len(chunks) - len(kept)
}

func inUnwanted(path []string, unwanted map[string]bool) bool {
	for _, p := range path {
		if unwanted[strings.ToLower(strings.TrimSpace(p))] {
			return true
		}
	}
	return false
}
