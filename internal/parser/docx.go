package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser reads Word documents. Heading and Title styles open sections,
// list styles render as bullet items and everything else is body text.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	b := newTreeBuilder()
	var titled bool
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		body := runText(para)
		switch kind, level := paragraphKind(para); kind {
		case "title":
			if !titled && body != "" {
				tree.Title, titled = body, true
			}
			b.heading(1, body)
		case "heading":
			b.heading(level, body)
		case "list":
			if body != "" {
				b.paragraph("- " + body)
			}
		default:
			b.paragraph(body)
		}
	}
	b.finish(tree)
	return tree, nil
}

// paragraphKind classifies a paragraph by its style id. Word writes both
// "Heading1" and "heading 1" depending on the producer.
func paragraphKind(para *docx.Paragraph) (string, int) {
	if para.Properties == nil || para.Properties.Style == nil {
		return "body", 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	switch {
	case style == "title":
		return "title", 1
	case strings.HasPrefix(style, "list"):
		return "list", 0
	}
	if n, ok := strings.CutPrefix(style, "heading"); ok && len(n) == 1 && n[0] >= '1' && n[0] <= '6' {
		return "heading", int(n[0] - '0')
	}
	return "body", 0
}

func runText(para *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, part := range run.Children {
			if t, ok := part.(*docx.Text); ok {
				sb.WriteString(t.Text)
			}
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
