package doctree

import (
	"strings"
	"unicode/utf8"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Lang     string     // Language code when known
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page/line (0 if N/A)
	Children []*DocNode // Subsections
}

// Section locates a heading in rendered text.
type Section struct {
	Title string   `json:"title" yaml:"title"`
	Level int      `json:"level" yaml:"level"`
	Path  []string `json:"heading_path" yaml:"heading_path"`
	Start int      `json:"start_pos" yaml:"start_pos"` // rune offset
}

// Prune drops every node (and its subtree) whose title matches one of the
// given names, compared case-insensitively. It returns the number of removed
// nodes.
func (t *DocTree) Prune(titles []string) int {
	if len(titles) == 0 {
		return 0
	}
	drop := make(map[string]bool, len(titles))
	for _, s := range titles {
		drop[normalizeTitle(s)] = true
	}
	var removed int
	t.Children = pruneNodes(t.Children, drop, &removed)
	return removed
}

func pruneNodes(nodes []*DocNode, drop map[string]bool, removed *int) []*DocNode {
	kept := nodes[:0]
	for _, n := range nodes {
		if n.Title != "" && drop[normalizeTitle(n.Title)] {
			*removed++
			continue
		}
		n.Children = pruneNodes(n.Children, drop, removed)
		kept = append(kept, n)
	}
	return kept
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Render flattens the tree into markdown with '#' headings. Text that appears
// before the first heading forms the lead. The returned sections are ordered
// by Start.
func Render(t *DocTree) (string, []Section) {
	r := &renderer{}
	for _, n := range t.Children {
		r.node(n, 1, nil)
	}
	return r.sb.String(), r.sections
}

type renderer struct {
	sb       strings.Builder
	runes    int
	sections []Section
}

func (r *renderer) write(s string) {
	r.sb.WriteString(s)
	r.runes += utf8.RuneCountInString(s)
}

func (r *renderer) block(s string) {
	if r.runes > 0 {
		r.write("\n\n")
	}
	r.write(s)
}

func (r *renderer) node(n *DocNode, depth int, path []string) {
	if n.Title != "" {
		level := min(depth, 6)
		p := make([]string, 0, len(path)+1)
		p = append(p, path...)
		p = append(p, n.Title)
		if r.runes > 0 {
			r.write("\n\n")
		}
		r.sections = append(r.sections, Section{
			Title: n.Title,
			Level: level,
			Path:  p,
			Start: r.runes,
		})
		r.write(strings.Repeat("#", level) + " " + n.Title)
		path = p
		depth++
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		r.block(text)
	}
	for _, c := range n.Children {
		r.node(c, depth, path)
	}
}
