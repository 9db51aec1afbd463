package questions

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Category classifies the cognitive task a question asks for.
type Category string

const (
	Factual        Category = "FACTUAL"
	Interpretation Category = "INTERPRETATION"
	LongAnswer     Category = "LONG_ANSWER"
)

// Question is one generated question-answer pair.
type Question struct {
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Category        Category `json:"category"`
	RelatedChunkIDs []string `json:"related_chunk_ids"`
}

const (
	minQuestionLen = 5
	maxQuestionLen = 1000
	maxAnswerLen   = 8000
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

// NormalizeCategory maps loose spellings ("long answer", "Long-Answer") onto
// a Category. Unknown values yield "".
func NormalizeCategory(s string) Category {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch c := Category(s); c {
	case Factual, Interpretation, LongAnswer:
		return c
	case "LONGANSWER":
		return LongAnswer
	}
	return ""
}

// ValidateQuestion checks and normalizes q in place. Related chunk ids are
// restricted to allowed; when none survive, all of allowed is used.
func ValidateQuestion(q *Question, allowed []string) bool {
	if q == nil {
		return false
	}
	q.Question = strings.TrimSpace(q.Question)
	q.Answer = strings.TrimSpace(q.Answer)

	if n := utf8.RuneCountInString(q.Question); n < minQuestionLen || n > maxQuestionLen {
		return false
	}
	if n := utf8.RuneCountInString(q.Answer); n == 0 || n > maxAnswerLen {
		return false
	}
	if q.Category = NormalizeCategory(string(q.Category)); q.Category == "" {
		return false
	}
	if injectionPattern.MatchString(q.Question) || injectionPattern.MatchString(q.Answer) {
		return false
	}

	q.RelatedChunkIDs = clampIDs(q.RelatedChunkIDs, allowed)
	return true
}

func clampIDs(ids, allowed []string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		ok[id] = true
	}
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if ok[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		out = append([]string(nil), allowed...)
	}
	return out
}
