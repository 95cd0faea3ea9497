package doctree

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Pages    int        // Page count for paginated formats, 0 otherwise
	Children []*DocNode // Top-level sections or pages
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for pages and plain paragraphs)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // 1-based source page, 0 if the format has no pages
	Children []*DocNode // Subsections
}

// Chunk is a sized text segment ready for embedding.
type Chunk struct {
	Text       string   // Chunk text content
	Index      int      // Sequence number within document
	Breadcrumb []string // Heading hierarchy, e.g. ["Methods", "Sampling"]
	Page       int      // Page the chunk was cut from, 0 if N/A
}

// Walk visits every node depth-first in document order.
func (t *DocTree) Walk(fn func(n *DocNode)) {
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			fn(n)
			walk(n.Children)
		}
	}
	walk(t.Children)
}
