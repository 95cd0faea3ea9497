package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pdfrag/internal/doctree"
)

// Config controls chunking behavior. Sizes are measured in characters (runes).
type Config struct {
	ChunkSize    int // Maximum chunk size.
	ChunkOverlap int // Characters shared by consecutive chunks of the same node.
	MinChars     int // Chunks shorter than this are dropped.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Normalize replaces out-of-range settings.
func (c Config) Normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.MinChars < 0 {
		c.MinChars = 0
	}
	return c
}

// separators are tried in order; a piece still too long after the last one
// is cut at the size limit.
var separators = []string{"\n\n", "\n", ". ", " "}

// ChunkTree walks a DocTree and produces chunks. A chunk never spans two
// nodes, so its page is always exact.
func ChunkTree(tree *doctree.DocTree, cfg Config) []doctree.Chunk {
	cfg = cfg.Normalize()

	var chunks []doctree.Chunk
	var walk func(nodes []*doctree.DocNode, breadcrumb []string)
	walk = func(nodes []*doctree.DocNode, breadcrumb []string) {
		for _, node := range nodes {
			bc := breadcrumb
			if node.Title != "" {
				bc = append(append([]string(nil), breadcrumb...), node.Title)
			}
			for _, part := range SplitText(node.Text, cfg.ChunkSize, cfg.ChunkOverlap) {
				if utf8.RuneCountInString(part) < cfg.MinChars {
					continue
				}
				chunks = append(chunks, doctree.Chunk{
					Text:       part,
					Index:      len(chunks),
					Breadcrumb: copyBreadcrumb(bc),
					Page:       node.Page,
				})
			}
			walk(node.Children, bc)
		}
	}
	walk(tree.Children, nil)

	return chunks
}

// SplitText breaks text into pieces of at most size runes, with up to overlap
// runes repeated at the start of each following piece.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return merge(splitRecursive(text, size, separators), size, overlap)
}

// splitRecursive cuts text on the first separator it contains, recursing with
// the finer separators on parts that are still too long. Separators stay
// attached to the preceding part so joining the parts restores the text.
func splitRecursive(text string, size int, seps []string) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	for i, sep := range seps {
		if !strings.Contains(text, sep) {
			continue
		}
		var out []string
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			if utf8.RuneCountInString(part) <= size {
				out = append(out, part)
				continue
			}
			out = append(out, splitRecursive(part, size, seps[i+1:])...)
		}
		return out
	}

	return hardCut(text, size)
}

func hardCut(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// merge packs consecutive pieces into windows of at most size runes. When a
// window is emitted, pieces are dropped from its front until what remains is
// within overlap and leaves room for the next piece.
func merge(pieces []string, size, overlap int) []string {
	var out []string
	var window []string
	lengths := make([]int, 0, len(pieces))
	total := 0

	emit := func() {
		if s := strings.TrimSpace(strings.Join(window, "")); s != "" {
			out = append(out, s)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > size && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > overlap || total+n > size) {
				total -= lengths[0]
				window = window[1:]
				lengths = lengths[1:]
			}
		}
		window = append(window, p)
		lengths = append(lengths, n)
		total += n
	}
	emit()

	return out
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
