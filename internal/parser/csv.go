package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docset/internal/doctree"
)

const defaultCSVBatch = 20

// CSVParser renders each record as "column: value" pairs and groups records
// into sections of BatchSize rows. The delimiter is sniffed from the header
// line; comma, semicolon and tab are recognised.
type CSVParser struct {
	BatchSize int
}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return tree, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	size := p.BatchSize
	if size <= 0 {
		size = defaultCSVBatch
	}
	batch := newCSVBatch(header)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line++
		batch.add(line, rec)
		if batch.rows == size {
			tree.Children = append(tree.Children, batch.node())
			batch = newCSVBatch(header)
		}
	}
	if batch.rows > 0 {
		tree.Children = append(tree.Children, batch.node())
	}
	return tree, nil
}

type csvBatch struct {
	header      []string
	first, last int
	rows        int
	body        strings.Builder
}

func newCSVBatch(header []string) *csvBatch {
	b := &csvBatch{header: header}
	b.body.WriteString("Headers: ")
	b.body.WriteString(strings.Join(header, ", "))
	b.body.WriteString("\n\n")
	return b
}

func (b *csvBatch) add(line int, rec []string) {
	if b.rows == 0 {
		b.first = line
	}
	b.last = line
	b.rows++
	pairs := make([]string, 0, len(rec))
	for i, v := range rec {
		name := fmt.Sprintf("col %d", i+1)
		if i < len(b.header) && b.header[i] != "" {
			name = b.header[i]
		}
		pairs = append(pairs, name+": "+v)
	}
	b.body.WriteString(strings.Join(pairs, ", "))
	b.body.WriteByte('\n')
}

func (b *csvBatch) node() *doctree.DocNode {
	return &doctree.DocNode{
		Title: fmt.Sprintf("Rows %d-%d", b.first, b.last),
		Text:  strings.TrimRight(b.body.String(), "\n"),
	}
}

// sniffDelimiter peeks at the first line and picks the most frequent of the
// candidate separators, defaulting to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	first, _, _ := strings.Cut(string(head), "\n")
	best, count := ',', strings.Count(first, ",")
	for _, c := range []rune{';', '\t'} {
		if n := strings.Count(first, string(c)); n > count {
			best, count = c, n
		}
	}
	return best
}
