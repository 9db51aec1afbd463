package source

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/docset/internal/doctree"
	"github.com/dgallion1/docset/internal/parser"
)

// DefaultStripSections are back-matter sections that carry no article prose.
var DefaultStripSections = []string{
	"See also",
	"References",
	"External links",
	"Further reading",
	"Bibliography",
	"Notes",
	"Citations",
	"Sources",
	"Footnotes",
}

// noiseSelector matches page chrome and reference apparatus.
const noiseSelector = "script, style, noscript, nav, footer, .navbox, .navbar, .navigation, " +
	".infobox, .reference, .references, .reflist, .citation, sup.reference, .mw-editsection, " +
	"#toc, .toc, figure, .thumb, .mw-empty-elt"

var citationRe = regexp.MustCompile(`(?i)\[(?:\d+|citation needed|when\?|note \d+)\]`)

// Cleaner turns fetched documents into sectioned markdown.
type Cleaner struct {
	StripSections []string
	Parser        parser.Options
}

func NewCleaner(strip []string, popts parser.Options) *Cleaner {
	if strip == nil {
		strip = DefaultStripSections
	}
	return &Cleaner{StripSections: strip, Parser: popts}
}

// Clean parses doc, drops noise and unwanted sections and renders the rest
// as markdown. Section offsets in the result are rune offsets into Text.
func (c *Cleaner) Clean(doc *Document) (*Cleaned, error) {
	if doc == nil || len(bytes.TrimSpace(doc.Body)) == 0 {
		return nil, ErrEmptyContent
	}

	var tree *doctree.DocTree
	var err error
	if isHTML(doc) {
		tree, err = c.cleanHTML(doc)
	} else {
		tree, err = c.parseFile(doc)
	}
	if err != nil {
		return nil, err
	}

	if doc.Title != "" {
		tree.Title = doc.Title
	}
	if tree.Title == "" {
		tree.Title = strings.TrimSuffix(filepath.Base(doc.Filename), filepath.Ext(doc.Filename))
	}
	if doc.Lang != "" {
		tree.Lang = doc.Lang
	}

	stripCitations(tree.Children)
	removed := tree.Prune(c.StripSections)
	text, sections := doctree.Render(tree)

	return &Cleaned{
		Title:     tree.Title,
		Lang:      tree.Lang,
		Text:      text,
		Sections:  sections,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		Removed:   removed,
	}, nil
}

func (c *Cleaner) cleanHTML(doc *Document) (*doctree.DocTree, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	gq.Find(noiseSelector).Remove()
	gq.Find("table").Each(func(_ int, table *goquery.Selection) {
		if !isSimpleTable(table) {
			table.Remove()
		}
	})
	if len(gq.Nodes) == 0 {
		return nil, ErrEmptyContent
	}
	fallback := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
	return parser.TreeFromHTML(gq.Nodes[0], fallback), nil
}

// isSimpleTable keeps small tables whose cells read as prose.
func isSimpleTable(table *goquery.Selection) bool {
	rows := table.Find("tr")
	if rows.Length() > 10 {
		return false
	}
	simple := true
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if row.Find("td, th").Length() > 5 {
			simple = false
		}
		return simple
	})
	return simple
}

func (c *Cleaner) parseFile(doc *Document) (*doctree.DocTree, error) {
	p, err := parser.ForFile(doc.Filename, c.Parser)
	if err != nil {
		return nil, err
	}
	tree, err := p.Parse(bytes.NewReader(doc.Body), doc.Filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.Filename, err)
	}
	return tree, nil
}

func isHTML(doc *Document) bool {
	if mediaType, _, err := mime.ParseMediaType(doc.ContentType); err == nil {
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	return ext == ".html" || ext == ".htm"
}

func stripCitations(nodes []*doctree.DocNode) {
	for _, n := range nodes {
		n.Title = strings.TrimSpace(citationRe.ReplaceAllString(n.Title, ""))
		n.Text = citationRe.ReplaceAllString(n.Text, "")
		stripCitations(n.Children)
	}
}
