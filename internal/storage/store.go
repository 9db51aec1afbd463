// Package storage persists articles, chunks and datasets as markdown files
// under a data directory and keeps a JSON index of completed articles.
//
// Layout:
//
//	<root>/index.json
//	<root>/logs.ndjson
//	<root>/articles/<id>/article.md
//	<root>/articles/<id>/raw/<filename>
//	<root>/articles/<id>/chunks/<chunk id>.md
//	<root>/articles/<id>/chunks_index.md
//	<root>/articles/<id>/dataset.md
//	<root>/articles/<id>/dataset.json
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/dgallion1/docset/internal/chunker"
	"github.com/dgallion1/docset/internal/questions"
)

var (
	ErrNotFound  = errors.New("storage: article not found")
	ErrInvalidID = errors.New("storage: invalid article id")
)

var articleIDRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Entry is one completed article in index.json.
type Entry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Lang        string    `json:"lang,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	Chunks      int       `json:"chunks"`
	Questions   int       `json:"questions"`
	Generation  string    `json:"generation,omitempty"`
}

// SplitSettings records the options an article was chunked with.
type SplitSettings struct {
	ChunkSize      int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	SplitStrategy  string `yaml:"split_strategy" json:"split_strategy"`
	TotalQuestions int    `yaml:"total_questions" json:"total_questions"`
}

// ArticleStats summarizes cleaning and splitting.
type ArticleStats struct {
	WordCount      int `yaml:"word_count" json:"word_count"`
	CharCount      int `yaml:"char_count" json:"char_count"`
	TotalChunks    int `yaml:"total_chunks" json:"total_chunks"`
	OriginalChunks int `yaml:"original_chunks" json:"original_chunks"`
	FilteredOut    int `yaml:"filtered_out" json:"filtered_out"`
}

// Article is everything WriteArticle puts on disk.
type Article struct {
	ID          string
	URL         string
	Title       string
	Lang        string
	Fingerprint string
	CreatedAt   time.Time
	Options     SplitSettings
	Stats       ArticleStats
	Text        string
	Chunks      []chunker.Chunk
	RawFilename string
	Raw         []byte
}

// Dataset is the generated question set for an article.
type Dataset struct {
	ArticleID   string
	Title       string
	GeneratedAt time.Time
	Questions   []questions.Question
}

// FS is a filesystem-backed store. Index reads and writes are serialized;
// article directories are written only by the run that owns them.
type FS struct {
	root string
	mu   sync.Mutex
}

// NewFS creates the data directory if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(filepath.Join(root, "articles"), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) articleDir(id string) string {
	return filepath.Join(s.root, "articles", id)
}

func (s *FS) indexPath() string { return filepath.Join(s.root, "index.json") }

// FindByFingerprint returns the newest committed entry for fingerprint, or
// nil when there is none.
func (s *FS) FindByFingerprint(fingerprint string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadIndexLocked()
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Fingerprint == fingerprint {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

// Commit records e in logs.ndjson and then appends it to the index. Committing
// an id that already exists replaces that entry. When the log append fails the
// index is left untouched, so a failed commit never makes the article visible.
func (s *FS) Commit(e Entry) error {
	if !articleIDRe.MatchString(e.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = e
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode index: %w", err)
	}
	if err := s.appendLogLocked(e); err != nil {
		return err
	}
	return writeAtomic(s.indexPath(), data)
}

type logLine struct {
	Time       time.Time `json:"ts"`
	Event      string    `json:"event"`
	ArticleID  string    `json:"article_id"`
	URL        string    `json:"url"`
	Chunks     int       `json:"chunks"`
	Questions  int       `json:"questions"`
	Generation string    `json:"generation,omitempty"`
}

func (s *FS) appendLogLocked(e Entry) error {
	line, err := json.Marshal(logLine{
		Time:       time.Now().UTC(),
		Event:      "article_committed",
		ArticleID:  e.ID,
		URL:        e.URL,
		Chunks:     e.Chunks,
		Questions:  e.Questions,
		Generation: e.Generation,
	})
	if err != nil {
		return fmt.Errorf("storage: encode log line: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.root, "logs.ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("storage: append log: %w", err)
	}
	return nil
}

// List returns all committed entries in commit order.
func (s *FS) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked()
}

// Get returns the committed entry for id.
func (s *FS) Get(id string) (*Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *FS) loadIndexLocked() ([]Entry, error) {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read index: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("storage: decode index: %w", err)
	}
	return entries, nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	return nil
}
