package parser

import (
	"path/filepath"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

// treeBuilder assembles a DocTree from a flat stream of headings and
// paragraphs, nesting sections by heading level.
type treeBuilder struct {
	root  *doctree.DocNode
	stack []builderEntry
	text  strings.Builder
}

type builderEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder() *treeBuilder {
	root := &doctree.DocNode{}
	return &treeBuilder{root: root, stack: []builderEntry{{node: root, level: 0}}}
}

func (b *treeBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

func (b *treeBuilder) heading(level int, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	b.flush()
	node := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, builderEntry{node: node, level: level})
}

func (b *treeBuilder) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

// finish moves the collected sections into tree. Text seen before the first
// heading becomes an untitled lead node.
func (b *treeBuilder) finish(tree *doctree.DocTree) {
	b.flush()
	var children []*doctree.DocNode
	if b.root.Text != "" {
		children = append(children, &doctree.DocNode{Text: b.root.Text})
	}
	tree.Children = append(children, b.root.Children...)
}

func baseTitle(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
