package parser

import (
	"io"
	"regexp"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

// TextParser treats blank-line separated blocks as paragraphs. A block whose
// last line is a run of '=' or '-' is an underlined heading; the paragraphs
// after it become its children.
type TextParser struct{}

var (
	blankLines = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
	underline  = regexp.MustCompile(`^(?:={3,}|-{3,})$`)
)

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	tree := &doctree.DocTree{Title: baseTitle(filename)}
	body := strings.ReplaceAll(string(raw), "\r\n", "\n")

	var section *doctree.DocNode
	for _, block := range blankLines.Split(body, -1) {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		if title, ok := underlinedHeading(block); ok {
			section = &doctree.DocNode{Title: title}
			tree.Children = append(tree.Children, section)
			continue
		}
		para := &doctree.DocNode{Text: block}
		if section != nil {
			section.Children = append(section.Children, para)
		} else {
			tree.Children = append(tree.Children, para)
		}
	}
	return tree, nil
}

func underlinedHeading(block string) (string, bool) {
	lines := strings.Split(block, "\n")
	if len(lines) < 2 || !underline.MatchString(strings.TrimSpace(lines[len(lines)-1])) {
		return "", false
	}
	title := strings.TrimSpace(strings.Join(lines[:len(lines)-1], " "))
	return title, title != ""
}
