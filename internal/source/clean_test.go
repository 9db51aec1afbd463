package source

import (
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/docset/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wikiExtract = `<p>Zürich is a city<sup class="reference">[1]</sup> in Switzerland.[2]</p>
<table class="infobox"><tr><td>Population</td></tr></table>
<h2><span class="mw-headline">History</span><span class="mw-editsection">edit</span></h2>
<p>Founded by the Romans.[citation needed]</p>
<h3>Middle Ages</h3>
<p>It grew.</p>
<h2>See also</h2>
<ul><li>Basel</li></ul>
<h3>Nested under see also</h3>
<p>Dropped too.</p>
<h2>References</h2>
<p>Ref text.</p>`

func TestClean_HTML(t *testing.T) {
	c := NewCleaner(nil, parser.Options{})
	out, err := c.Clean(&Document{
		Title:       "Zürich",
		Lang:        "en",
		Filename:    "Zürich.html",
		ContentType: "text/html",
		Body:        []byte(wikiExtract),
	})
	require.NoError(t, err)

	assert.Equal(t, "Zürich", out.Title)
	assert.Equal(t, "en", out.Lang)
	assert.Equal(t, "Zürich is a city in Switzerland.\n\n# History\n\nFounded by the Romans.\n\n## Middle Ages\n\nIt grew.", out.Text)
	assert.Equal(t, 2, out.Removed)
	assert.NotContains(t, out.Text, "Population")
	assert.NotContains(t, out.Text, "edit")

	require.Len(t, out.Sections, 2)
	assert.Equal(t, "History", out.Sections[0].Title)
	assert.Equal(t, []string{"History", "Middle Ages"}, out.Sections[1].Path)

	runes := []rune(out.Text)
	for _, s := range out.Sections {
		assert.Equal(t, '#', runes[s.Start], s.Title)
	}
	assert.Equal(t, utf8.RuneCountInString(out.Text), out.CharCount)
	assert.Equal(t, 17, out.WordCount)
}

func TestClean_ComplexTableRemoved(t *testing.T) {
	body := `<p>Intro.</p><table><tr><td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td>f</td></tr></table>
<table><tr><td>kept cell</td></tr></table>`
	out, err := NewCleaner(nil, parser.Options{}).Clean(&Document{Filename: "t.html", Body: []byte(body)})
	require.NoError(t, err)
	assert.Equal(t, "Intro.\n\nkept cell", out.Text)
	assert.Equal(t, "t", out.Title)
}

func TestClean_UploadedMarkdown(t *testing.T) {
	body := "Lead line.\n\n# Intro\n\nText [3] here.\n\n## Notes\n\nskip me\n"
	out, err := NewCleaner(nil, parser.Options{}).Clean(&Document{Ref: "upload://x", Filename: "guide.md", Body: []byte(body)})
	require.NoError(t, err)

	assert.Equal(t, "guide", out.Title)
	assert.Equal(t, "Lead line.\n\n# Intro\n\nText  here.", out.Text)
	require.Len(t, out.Sections, 1)
	assert.Equal(t, 12, out.Sections[0].Start)
}

func TestClean_Errors(t *testing.T) {
	c := NewCleaner(nil, parser.Options{})
	_, err := c.Clean(&Document{Filename: "a.txt", Body: []byte("  \n ")})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = c.Clean(&Document{Filename: "a.exe", Body: []byte("data")})
	assert.Error(t, err)
}
