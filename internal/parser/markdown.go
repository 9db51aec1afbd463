package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser builds the section tree from goldmark's block AST. Headings
// nest by level, list items become "- " paragraphs, code blocks keep their
// lines verbatim and raw HTML blocks and rules are dropped.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	b := newTreeBuilder()
	for blk := root.FirstChild(); blk != nil; blk = blk.NextSibling() {
		switch blk := blk.(type) {
		case *ast.Heading:
			b.heading(blk.Level, inlineText(blk, src))
		case *ast.List:
			for li := blk.FirstChild(); li != nil; li = li.NextSibling() {
				b.paragraph("- " + inlineText(li, src))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			b.paragraph(rawLines(blk, src))
		case *ast.HTMLBlock, *ast.ThematicBreak:
		default:
			b.paragraph(inlineText(blk, src))
		}
	}
	b.finish(tree)
	return tree, nil
}

func rawLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// inlineText flattens n's descendants to plain text, keeping line breaks and
// separating nested blocks with a newline.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		buf.WriteString(rawLines(n, src))
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
