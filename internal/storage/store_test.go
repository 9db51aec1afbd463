package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docset/internal/chunker"
	"github.com/dgallion1/docset/internal/questions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)
	return s, dir
}

func testArticle() Article {
	return Article{
		ID:          "zurich_0badcafe",
		URL:         "https://en.wikipedia.org/wiki/Z%C3%BCrich",
		Title:       "Zürich",
		Lang:        "en",
		Fingerprint: "fp1",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Options:     SplitSettings{ChunkSize: 1200, ChunkOverlap: 200, SplitStrategy: "header_aware", TotalQuestions: 10},
		Stats:       ArticleStats{WordCount: 9, CharCount: 40, TotalChunks: 2, OriginalChunks: 3, FilteredOut: 1},
		Text:        "Zürich is a city.\n\n# History\n\nIt grew.",
		RawFilename: "Zürich.html",
		Raw:         []byte("<p>Zürich is a city.</p>"),
		Chunks: []chunker.Chunk{
			{ID: "zurich_0badcafe_c0001", Index: 1, Section: "History", HeadingPath: []string{"Lead", "History"}, Start: 19, End: 39, Text: "# History\n\nIt | grew.", CharCount: 20, Tokens: 5},
			{ID: "zurich_0badcafe_c0000", Index: 0, Section: "Lead", HeadingPath: []string{"Lead"}, Start: 0, End: 17, Text: "Zürich is a city.", CharCount: 17, Tokens: 5},
		},
	}
}

func TestWriteAndReadArticle(t *testing.T) {
	s, dir := newStore(t)
	a := testArticle()
	require.NoError(t, s.WriteArticle(a))

	meta, chunks, err := s.ReadArticle(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zürich", meta.Title)
	assert.Equal(t, "fp1", meta.Checksum)
	assert.True(t, a.CreatedAt.Equal(meta.CreatedAt))
	assert.Equal(t, a.Options, meta.Options)
	assert.Equal(t, a.Stats, meta.Stats)

	require.Len(t, chunks, 2)
	assert.Equal(t, "zurich_0badcafe_c0000", chunks[0].ID)
	assert.Equal(t, []string{"Lead", "History"}, chunks[1].HeadingPath)
	assert.Equal(t, 19, chunks[1].CharStart)

	articleMD, err := os.ReadFile(filepath.Join(dir, "articles", a.ID, "article.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(articleMD), "---\nid: zurich_0badcafe\n"))
	assert.True(t, strings.HasSuffix(string(articleMD), "---\n\nZürich is a city.\n\n# History\n\nIt grew.\n"))

	raw, err := os.ReadFile(filepath.Join(dir, "articles", a.ID, "raw", "Zürich.html"))
	require.NoError(t, err)
	assert.Equal(t, a.Raw, raw)

	index, err := os.ReadFile(filepath.Join(dir, "articles", a.ID, "chunks_index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "| ID | Section | Heading Path | Char Range | Preview |")
	assert.Contains(t, string(index), "| zurich_0badcafe_c0001 | History | Lead > History | 19-39 | # History It \\| grew. |")
}

func TestWriteArticle_RejectsBadID(t *testing.T) {
	s, _ := newStore(t)
	a := testArticle()
	a.ID = "../escape"
	assert.ErrorIs(t, s.WriteArticle(a), ErrInvalidID)

	_, _, err := s.ReadArticle("../escape")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteAndReadDataset(t *testing.T) {
	s, _ := newStore(t)
	d := Dataset{
		ArticleID:   "zurich_0badcafe",
		Title:       "Zürich",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Questions: []questions.Question{
			{Question: "What is Zürich?", Answer: "A city.", Category: questions.Factual, RelatedChunkIDs: []string{"zurich_0badcafe_c0000"}},
			{Question: "How did it change?", Answer: "It grew.\nA lot.", Category: questions.LongAnswer, RelatedChunkIDs: []string{"a", "b"}},
		},
	}
	require.NoError(t, s.WriteDataset(d))

	qs, err := s.ReadDataset(d.ArticleID)
	require.NoError(t, err)
	assert.Equal(t, d.Questions, qs)

	md, err := s.DatasetMarkdown(d.ArticleID)
	require.NoError(t, err)
	text := string(md)
	assert.True(t, strings.HasPrefix(text, "# Dataset: Zürich\n\nGenerated on: 2026-01-02T03:04:05Z\n\nTotal questions: 2\n"))
	assert.Contains(t, text, "| # | Question | Answer | Category | Related_Chunk_IDs |")
	assert.Contains(t, text, "| 2 | How did it change? | It grew. A lot. | LONG_ANSWER | a, b |")

	_, err = s.ReadDataset("missing_id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteDataset_Empty(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.WriteDataset(Dataset{ArticleID: "empty_1", Title: "Empty"}))
	qs, err := s.ReadDataset("empty_1")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestCommitAndFind(t *testing.T) {
	s, dir := newStore(t)

	found, err := s.FindByFingerprint("fp1")
	require.NoError(t, err)
	assert.Nil(t, found)

	first := Entry{ID: "a_1", Title: "A", Fingerprint: "fp1", CreatedAt: time.Now().UTC(), Chunks: 3, Questions: 10, Generation: "ok"}
	second := Entry{ID: "a_2", Title: "A", Fingerprint: "fp1", CreatedAt: time.Now().UTC(), Chunks: 4, Questions: 9, Generation: "partial"}
	require.NoError(t, s.Commit(first))
	require.NoError(t, s.Commit(Entry{ID: "b_1", Fingerprint: "fp2"}))
	require.NoError(t, s.Commit(second))

	found, err = s.FindByFingerprint("fp1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a_2", found.ID)

	entries, err := s.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	got, err := s.Get("b_1")
	require.NoError(t, err)
	assert.Equal(t, "fp2", got.Fingerprint)
	_, err = s.Get("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	// Recommitting an id replaces it.
	first.Questions = 1
	require.NoError(t, s.Commit(first))
	entries, err = s.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].Questions)

	f, err := os.Open(filepath.Join(dir, "logs.ndjson"))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		assert.Contains(t, sc.Text(), `"event":"article_committed"`)
		lines++
	}
	assert.Equal(t, 4, lines)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".index.json.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCommit_Concurrent(t *testing.T) {
	s, _ := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Commit(Entry{ID: chunker.ChunkID("doc", i), Fingerprint: "fp"}))
		}(i)
	}
	wg.Wait()

	entries, err := s.List()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestCommit_LogFailureLeavesIndexUntouched(t *testing.T) {
	s, dir := newStore(t)
	// A directory where the log file should be makes the append fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "logs.ndjson"), 0o755))

	err := s.Commit(Entry{ID: "zurich_0badcafe", Fingerprint: "fp"})
	require.Error(t, err)

	found, err := s.FindByFingerprint("fp")
	require.NoError(t, err)
	assert.Nil(t, found)
	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
