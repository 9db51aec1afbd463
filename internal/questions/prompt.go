package questions

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docset/internal/chunker"
)

const DefaultSystemPrompt = `You write question-answer pairs for retrieval-augmented generation datasets.

Every question must be answerable from the supplied text chunks alone. Do not add facts that are not in the text, and do not refer to "the text", "the chunk" or "the context" in questions or answers.

Assign each question exactly one category:
- FACTUAL: direct recall of a specific name, date, number or short phrase stated in the text.
- INTERPRETATION: explaining causes, effects or relationships between concepts, synthesizing rather than quoting.
- LONG_ANSWER: a multi-sentence summary or detailed explanation of a major topic, process or event.

Respond with a JSON object of this exact shape:
{"questions": [{"question": "...", "answer": "...", "category": "FACTUAL", "related_chunk_ids": ["<chunk id>"]}]}

"related_chunk_ids" may contain only chunk ids given in the prompt, and only those needed to answer the question.`

// Request asks for Count questions grounded in Chunks.
type Request struct {
	ArticleTitle string
	Chunks       []chunker.Chunk
	Count        int
}

// ChunkIDs returns the ids of the request's chunks in order.
func (r Request) ChunkIDs() []string {
	ids := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		ids[i] = c.ID
	}
	return ids
}

// BuildPrompt renders the user message for a request. Single-chunk requests
// ask for self-contained questions, multi-chunk requests for questions that
// connect the chunks.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	if len(req.Chunks) == 1 {
		fmt.Fprintf(&sb, "Generate exactly %d question-answer pair(s) answerable from this chunk alone.\n", req.Count)
	} else {
		fmt.Fprintf(&sb, "Generate exactly %d question-answer pair(s) that need information from at least two of the chunks below, "+
			"such as connections, comparisons or broader concepts.\n", req.Count)
	}
	if req.ArticleTitle != "" {
		fmt.Fprintf(&sb, "Article: %q\n", req.ArticleTitle)
	}

	for _, c := range req.Chunks {
		sb.WriteString("\n--- Chunk ")
		sb.WriteString(c.ID)
		sb.WriteString(" ---\n")
		if len(c.HeadingPath) > 0 {
			sb.WriteString("Section: ")
			sb.WriteString(strings.Join(c.HeadingPath, " > "))
			sb.WriteString("\n")
		}
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nValid chunk ids: %s\n", strings.Join(req.ChunkIDs(), ", "))
	return sb.String()
}
