package doctree

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *DocTree {
	return &DocTree{
		Title: "Sample",
		Children: []*DocNode{
			{Text: "Lead paragraph."},
			{
				Title: "Introduction",
				Text:  "Intro body.",
				Children: []*DocNode{
					{Title: "History", Text: "Old times."},
				},
			},
			{Title: "References", Text: "[1] Someone."},
		},
	}
}

func TestRender_HeadingsAndSections(t *testing.T) {
	text, sections := Render(sampleTree())

	assert.True(t, strings.HasPrefix(text, "Lead paragraph."))
	assert.Contains(t, text, "# Introduction\n\nIntro body.")
	assert.Contains(t, text, "## History\n\nOld times.")

	require.Len(t, sections, 3)
	assert.Equal(t, []string{"Introduction", "History"}, sections[1].Path)
	assert.Equal(t, 2, sections[1].Level)

	runes := []rune(text)
	for _, s := range sections {
		heading := string(runes[s.Start:])
		assert.True(t, strings.HasPrefix(heading, strings.Repeat("#", s.Level)+" "+s.Title), "section %q", s.Title)
	}
}

func TestRender_RuneOffsets(t *testing.T) {
	tree := &DocTree{Children: []*DocNode{
		{Text: "Zürich és Köln."},
		{Title: "Über", Text: "Straße."},
	}}
	text, sections := Render(tree)
	require.Len(t, sections, 1)
	assert.Equal(t, utf8.RuneCountInString("Zürich és Köln.\n\n"), sections[0].Start)
	assert.Equal(t, "# Über", string([]rune(text)[sections[0].Start:sections[0].Start+6]))
}

func TestPrune_RemovesMatchingSubtrees(t *testing.T) {
	tree := sampleTree()
	removed := tree.Prune([]string{"references", "  HISTORY "})
	assert.Equal(t, 2, removed)

	text, sections := Render(tree)
	assert.NotContains(t, text, "References")
	assert.NotContains(t, text, "Old times.")
	require.Len(t, sections, 1)
	assert.Equal(t, "Introduction", sections[0].Title)
}

func TestRender_Empty(t *testing.T) {
	text, sections := Render(&DocTree{})
	assert.Empty(t, text)
	assert.Empty(t, sections)
}
