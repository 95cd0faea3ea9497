package rag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

const AnswerPrompt = `Answer the question using only the numbered context passages below.

Rules:
- Cite every claim with the passage number in square brackets, e.g. [2]
- If the passages do not contain the answer, say you don't know; do not guess
- Keep the answer concise and in the language of the question`

// BuildPrompt assembles the answer prompt from the question and retrieved
// passages, numbered from 1 in retrieval order.
func BuildPrompt(question string, hits []vectorstore.Hit) string {
	var sb strings.Builder
	sb.WriteString(AnswerPrompt)
	sb.WriteString("\n\n---\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] %s", i+1, h.Source)
		if h.Page > 0 {
			fmt.Fprintf(&sb, " (page %d)", h.Page)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(h.Text))
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// citationRe matches [2], [1, 3] and [1-3] style references.
var citationRe = regexp.MustCompile(`\[(\d+(?:\s*[,\x{2013}-]\s*\d+)*)\]`)

// citedPassages returns the passage numbers in 1..n referenced in answer.
// Ranges are expanded.
func citedPassages(answer string, n int) map[int]bool {
	cited := make(map[int]bool)
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			lo, hi, ok := citationRange(part)
			if !ok {
				continue
			}
			for i := max(lo, 1); i <= min(hi, n); i++ {
				cited[i] = true
			}
		}
	}
	return cited
}

func citationRange(part string) (int, int, bool) {
	from, to, isRange := strings.Cut(strings.ReplaceAll(part, "\u2013", "-"), "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}

// Preview shortens text to at most limit runes, cutting at a word boundary
// when one is available and appending "...".
func Preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := runes[:limit]
	if i := lastSpace(cut); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "..."
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}
