package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

// Strategy names a boundary policy.
type Strategy string

const (
	Recursive   Strategy = "recursive"
	Sentence    Strategy = "sentence"
	HeaderAware Strategy = "header_aware"
)

// LeadSection labels text that precedes the first heading.
const LeadSection = "Lead"

var (
	ErrEmptyText       = errors.New("chunker: text is empty")
	ErrInvalidParams   = errors.New("chunker: invalid chunk size or overlap")
	ErrUnknownStrategy = errors.New("chunker: unknown strategy")
)

// Options controls a single Split call. ChunkSize and Overlap count runes.
type Options struct {
	Strategy   Strategy
	ChunkSize  int
	Overlap    int
	DocumentID string

	// Sections, when set, replaces heading detection on the text itself.
	Sections []doctree.Section
}

// Chunk is a contiguous, offset-addressed slice of the source text.
type Chunk struct {
	ID          string   `json:"id"`
	Index       int      `json:"index"`
	DocumentID  string   `json:"document_id,omitempty"`
	Section     string   `json:"section"`
	HeadingPath []string `json:"heading_path"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Text        string   `json:"text"`
	CharCount   int      `json:"char_count"`
	Tokens      int      `json:"token_estimate"`
}

// ChunkID formats the identifier of the chunk at index within a document.
func ChunkID(documentID string, index int) string {
	if documentID == "" {
		return fmt.Sprintf("c%04d", index)
	}
	return fmt.Sprintf("%s_c%04d", documentID, index)
}

// ParseStrategy maps a user-supplied name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Recursive, Sentence, HeaderAware:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Split segments text into chunks. It is deterministic and has no side
// effects. Every rune of text lies in at least one chunk, and chunk start
// offsets are strictly increasing.
func Split(text string, opts Options) ([]Chunk, error) {
	if opts.ChunkSize < 1 || opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", ErrInvalidParams, opts.ChunkSize, opts.Overlap)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	runes := []rune(text)
	var sections []sectionSpan
	if opts.Sections != nil {
		sections = sectionSpans(runes, opts.Sections)
	} else {
		sections = sectionSpans(runes, DetectHeadings(text))
	}

	var spans []span
	switch opts.Strategy {
	case Recursive:
		spans = recursiveSpans(runes, 0, len(runes), opts.ChunkSize, opts.Overlap)
	case Sentence:
		spans = sentenceChunks(runes, opts.ChunkSize, opts.Overlap)
	case HeaderAware:
		for _, sec := range sections {
			spans = append(spans, recursiveSpans(runes, sec.start, sec.end, opts.ChunkSize, opts.Overlap)...)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		sec := sectionAt(sections, sp.start)
		content := string(runes[sp.start:sp.end])
		chunks = append(chunks, Chunk{
			ID:          ChunkID(opts.DocumentID, i),
			Index:       i,
			DocumentID:  opts.DocumentID,
			Section:     sec.title,
			HeadingPath: append([]string(nil), sec.path...),
			Start:       sp.start,
			End:         sp.end,
			Text:        content,
			CharCount:   sp.end - sp.start,
			Tokens:      EstimateTokens(content),
		})
	}
	return chunks, nil
}

// span is a half-open rune range.
type span struct {
	start, end int
}

type sectionSpan struct {
	span
	title string
	path  []string
}

// sectionSpans turns heading positions into sections that tile [0, n).
func sectionSpans(runes []rune, headings []doctree.Section) []sectionSpan {
	n := len(runes)
	hs := make([]doctree.Section, 0, len(headings))
	for _, h := range headings {
		if h.Start >= 0 && h.Start < n {
			hs = append(hs, h)
		}
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Start < hs[j].Start })

	var out []sectionSpan
	if len(hs) == 0 || hs[0].Start > 0 {
		end := n
		if len(hs) > 0 {
			end = hs[0].Start
		}
		out = append(out, sectionSpan{
			span:  span{0, end},
			title: LeadSection,
			path:  []string{LeadSection},
		})
	}
	for i, h := range hs {
		end := n
		if i+1 < len(hs) {
			end = hs[i+1].Start
		}
		if end <= h.Start {
			continue
		}
		path := make([]string, 0, len(h.Path)+1)
		path = append(path, LeadSection)
		if len(h.Path) > 0 {
			path = append(path, h.Path...)
		} else {
			path = append(path, h.Title)
		}
		out = append(out, sectionSpan{
			span:  span{h.Start, end},
			title: h.Title,
			path:  path,
		})
	}

	// A lead that holds only whitespace is folded into the first heading.
	if len(out) > 1 && out[0].title == LeadSection && isBlank(runes[out[0].start:out[0].end]) {
		out[1].start = 0
		out = out[1:]
	}
	return out
}

func isBlank(rs []rune) bool {
	return strings.TrimSpace(string(rs)) == ""
}

func sectionAt(sections []sectionSpan, offset int) sectionSpan {
	i := sort.Search(len(sections), func(i int) bool { return sections[i].end > offset })
	if i == len(sections) {
		i = len(sections) - 1
	}
	return sections[i]
}
