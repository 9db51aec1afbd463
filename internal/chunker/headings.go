package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docset/internal/doctree"
)

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)[ \t]*#*[ \t]*$`)
	wikiHeading     = regexp.MustCompile(`^(={2,6})[ \t]*(.+?)[ \t]*={2,6}[ \t]*$`)
)

// DetectHeadings finds markdown ("## Title") and MediaWiki ("== Title ==")
// heading lines and returns them with rune offsets and ancestor paths.
func DetectHeadings(text string) []doctree.Section {
	type entry struct {
		title string
		level int
	}
	var (
		out   []doctree.Section
		stack []entry
		pos   int
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		level, title := headingOf(trimmed)
		if level > 0 && title != "" {
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, entry{title: title, level: level})
			path := make([]string, len(stack))
			for i, e := range stack {
				path[i] = e.title
			}
			out = append(out, doctree.Section{
				Title: title,
				Level: level,
				Path:  path,
				Start: pos,
			})
		}
		pos += utf8.RuneCountInString(line)
	}
	return out
}

func headingOf(line string) (int, string) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return len(m[1]), strings.TrimSpace(m[2])
	}
	if m := wikiHeading.FindStringSubmatch(line); m != nil {
		return len(m[1]), strings.TrimSpace(m[2])
	}
	return 0, ""
}
