// Package parser turns uploaded or fetched files into a doctree.DocTree,
// one implementation per supported format.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// Options carries format-specific settings into ForFile.
type Options struct {
	PDFFallbackPdftotext bool
}

var formats = map[string]func(Options) Parser{
	".txt":      func(Options) Parser { return &TextParser{} },
	".md":       func(Options) Parser { return &MarkdownParser{} },
	".markdown": func(Options) Parser { return &MarkdownParser{} },
	".csv":      func(Options) Parser { return &CSVParser{} },
	".html":     func(Options) Parser { return &HTMLParser{} },
	".htm":      func(Options) Parser { return &HTMLParser{} },
	".pdf":      func(o Options) Parser { return &PDFParser{FallbackPdftotext: o.PDFFallbackPdftotext} },
	".docx":     func(Options) Parser { return &DOCXParser{} },
}

// ForFile picks a parser from the file extension, ignoring case.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mk, ok := formats[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
	return mk(opts), nil
}

func IsSupportedExtension(filename string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions returns the supported extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}
