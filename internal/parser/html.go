package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return TreeFromHTML(doc, baseTitle(filename)), nil
}

// TreeFromHTML builds a section tree from parsed HTML, nesting content under
// h1-h6 headings. The <title> element, when present, wins over fallbackTitle.
func TreeFromHTML(doc *html.Node, fallbackTitle string) *doctree.DocTree {
	tree := &doctree.DocTree{Title: fallbackTitle, Lang: findLang(doc)}
	if title := findTitle(doc); title != "" {
		tree.Title = title
	}

	b := newTreeBuilder()
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				b.heading(level, textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "header", "title", "head":
				return
			case "p", "td", "th", "blockquote", "pre", "dd", "dt", "figcaption":
				b.paragraph(textContent(n))
				return
			case "li":
				if t := textContent(n); t != "" {
					b.paragraph("- " + t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	b.finish(tree)
	return tree
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return collapseSpaces(buf.String())
}

// collapseSpaces squeezes runs of spaces and tabs while keeping line breaks.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func findTitle(n *html.Node) string {
	if t := findElement(n, "title"); t != nil {
		return textContent(t)
	}
	return ""
}

func findLang(doc *html.Node) string {
	if h := findElement(doc, "html"); h != nil {
		for _, a := range h.Attr {
			if a.Key == "lang" {
				return a.Val
			}
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if e := findElement(c, tag); e != nil {
			return e
		}
	}
	return nil
}
