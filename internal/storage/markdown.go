package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/docset/internal/questions"
	"gopkg.in/yaml.v3"
)

const previewRunes = 200

// ArticleMeta is the front matter of article.md.
type ArticleMeta struct {
	ID        string        `yaml:"id" json:"id"`
	URL       string        `yaml:"url" json:"url"`
	Title     string        `yaml:"title" json:"title"`
	Lang      string        `yaml:"lang" json:"lang"`
	CreatedAt time.Time     `yaml:"created_at" json:"created_at"`
	Checksum  string        `yaml:"checksum" json:"checksum"`
	Options   SplitSettings `yaml:"options" json:"options"`
	Stats     ArticleStats  `yaml:"stats" json:"stats"`
}

// ChunkMeta is the front matter of a chunk file.
type ChunkMeta struct {
	ID            string   `yaml:"id" json:"id"`
	ArticleID     string   `yaml:"article_id" json:"article_id"`
	Index         int      `yaml:"index" json:"index"`
	Section       string   `yaml:"section" json:"section"`
	HeadingPath   []string `yaml:"heading_path" json:"heading_path"`
	CharStart     int      `yaml:"char_start" json:"char_start"`
	CharEnd       int      `yaml:"char_end" json:"char_end"`
	CharCount     int      `yaml:"char_count" json:"char_count"`
	TokenEstimate int      `yaml:"token_estimate" json:"token_estimate"`
}

// WriteArticle writes article.md, the raw source, one file per chunk and
// chunks_index.md.
func (s *FS) WriteArticle(a Article) error {
	if !articleIDRe.MatchString(a.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, a.ID)
	}
	dir := s.articleDir(a.ID)

	if len(a.Raw) > 0 {
		name := filepath.Base(a.RawFilename)
		if name == "." || name == "/" || name == "" {
			name = "source"
		}
		if err := writeAtomic(filepath.Join(dir, "raw", name), a.Raw); err != nil {
			return err
		}
	}

	meta := ArticleMeta{
		ID:        a.ID,
		URL:       a.URL,
		Title:     a.Title,
		Lang:      a.Lang,
		CreatedAt: a.CreatedAt.UTC(),
		Checksum:  a.Fingerprint,
		Options:   a.Options,
		Stats:     a.Stats,
	}
	doc, err := withFrontMatter(meta, a.Text)
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, "article.md"), doc); err != nil {
		return err
	}

	for _, c := range a.Chunks {
		cm := ChunkMeta{
			ID:            c.ID,
			ArticleID:     a.ID,
			Index:         c.Index,
			Section:       c.Section,
			HeadingPath:   c.HeadingPath,
			CharStart:     c.Start,
			CharEnd:       c.End,
			CharCount:     c.CharCount,
			TokenEstimate: c.Tokens,
		}
		doc, err := withFrontMatter(cm, c.Text)
		if err != nil {
			return err
		}
		if err := writeAtomic(filepath.Join(dir, "chunks", c.ID+".md"), doc); err != nil {
			return err
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Chunks: %s\n\n", a.Title)
	sb.WriteString("| ID | Section | Heading Path | Char Range | Preview |\n")
	sb.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, c := range a.Chunks {
		fmt.Fprintf(&sb, "| %s | %s | %s | %d-%d | %s |\n",
			c.ID,
			cell(c.Section),
			cell(strings.Join(c.HeadingPath, " > ")),
			c.Start, c.End,
			cell(preview(c.Text, previewRunes)),
		)
	}
	return writeAtomic(filepath.Join(dir, "chunks_index.md"), []byte(sb.String()))
}

// WriteDataset writes dataset.md and dataset.json.
func (s *FS) WriteDataset(d Dataset) error {
	if !articleIDRe.MatchString(d.ArticleID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, d.ArticleID)
	}
	dir := s.articleDir(d.ArticleID)
	qs := d.Questions
	if qs == nil {
		qs = []questions.Question{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Dataset: %s\n\n", d.Title)
	fmt.Fprintf(&sb, "Generated on: %s\n\n", d.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Total questions: %d\n\n", len(qs))
	sb.WriteString("| # | Question | Answer | Category | Related_Chunk_IDs |\n")
	sb.WriteString("| --- | --- | --- | --- | --- |\n")
	for i, q := range qs {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			i+1, cell(q.Question), cell(q.Answer), q.Category, strings.Join(q.RelatedChunkIDs, ", "))
	}
	if err := writeAtomic(filepath.Join(dir, "dataset.md"), []byte(sb.String())); err != nil {
		return err
	}

	data, err := json.MarshalIndent(qs, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode dataset: %w", err)
	}
	return writeAtomic(filepath.Join(dir, "dataset.json"), data)
}

// ReadArticle returns article.md's front matter and the metadata of every
// chunk, ordered by index.
func (s *FS) ReadArticle(id string) (*ArticleMeta, []ChunkMeta, error) {
	if !articleIDRe.MatchString(id) {
		return nil, nil, ErrNotFound
	}
	dir := s.articleDir(id)

	var meta ArticleMeta
	if err := readFrontMatter(filepath.Join(dir, "article.md"), &meta); err != nil {
		return nil, nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "chunks", "*.md"))
	if err != nil {
		return nil, nil, fmt.Errorf("storage: list chunks: %w", err)
	}
	chunks := make([]ChunkMeta, 0, len(paths))
	for _, p := range paths {
		var cm ChunkMeta
		if err := readFrontMatter(p, &cm); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, cm)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return &meta, chunks, nil
}

// ReadDataset returns the questions stored for an article.
func (s *FS) ReadDataset(id string) ([]questions.Question, error) {
	data, err := s.readArticleFile(id, "dataset.json")
	if err != nil {
		return nil, err
	}
	var qs []questions.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("storage: decode dataset: %w", err)
	}
	return qs, nil
}

// DatasetMarkdown returns dataset.md verbatim.
func (s *FS) DatasetMarkdown(id string) ([]byte, error) {
	return s.readArticleFile(id, "dataset.md")
}

func (s *FS) readArticleFile(id, name string) ([]byte, error) {
	if !articleIDRe.MatchString(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.articleDir(id), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

func withFrontMatter(meta any, body string) ([]byte, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("storage: encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func readFrontMatter(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", filepath.Base(path), err)
	}
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return fmt.Errorf("storage: %s has no front matter", filepath.Base(path))
	}
	fm, _, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return fmt.Errorf("storage: %s has unterminated front matter", filepath.Base(path))
	}
	if err := yaml.Unmarshal(fm, out); err != nil {
		return fmt.Errorf("storage: decode front matter of %s: %w", filepath.Base(path), err)
	}
	return nil
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func preview(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
