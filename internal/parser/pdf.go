package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser extracts one section per page. When the embedded reader yields
// no text and FallbackPdftotext is set, the poppler pdftotext binary is tried.
type PDFParser struct {
	FallbackPdftotext bool
}

var errNoPDFText = errors.New("no extractable text")

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := readPDFPages(data)
	if err != nil || blankPages(pages) {
		if !p.FallbackPdftotext {
			if err == nil {
				err = errNoPDFText
			}
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
		if pages, err = pdftotextPages(data); err != nil {
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	for i, raw := range pages {
		body := reflowPage(raw)
		if body == "" {
			continue
		}
		node := &doctree.DocNode{Text: body, Page: i + 1}
		if len(pages) > 1 {
			node.Title = fmt.Sprintf("Page %d", i+1)
		}
		tree.Children = append(tree.Children, node)
	}
	return tree, nil
}

func readPDFPages(data []byte) ([]string, error) {
	doc, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	pages := make([]string, 0, doc.NumPage())
	for n := 1; n <= doc.NumPage(); n++ {
		pg := doc.Page(n)
		if pg.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := pg.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pdftotextPages pipes the document through pdftotext, which separates
// pages with form feeds.
func pdftotextPages(data []byte) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pdftotext: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	pages := strings.Split(string(out), "\f")
	if blankPages(pages) {
		return nil, errNoPDFText
	}
	return pages, nil
}

func blankPages(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

var (
	hyphenBreak = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
	spaceRun    = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// reflowPage rejoins words hyphenated across lines, squeezes layout padding
// and keeps blank lines as paragraph breaks.
func reflowPage(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = hyphenBreak.ReplaceAllString(raw, "$1$2")

	var paras []string
	var cur []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, "\n"))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, "\n"))
	}
	return strings.Join(paras, "\n\n")
}
