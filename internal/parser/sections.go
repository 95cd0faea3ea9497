package parser

import (
	"strings"

	"github.com/dgallion1/pdfrag/internal/doctree"
)

// sectionBuilder turns a flat stream of headings and paragraphs into a
// nested DocNode hierarchy. A heading of level n closes every open section
// of level >= n.
type sectionBuilder struct {
	root  *doctree.DocNode
	stack []openSection
	text  strings.Builder
}

type openSection struct {
	node  *doctree.DocNode
	level int
}

func newSectionBuilder() *sectionBuilder {
	root := &doctree.DocNode{}
	return &sectionBuilder{
		root:  root,
		stack: []openSection{{node: root, level: 0}},
	}
}

// Heading opens a new section. Empty titles are ignored.
func (b *sectionBuilder) Heading(level int, title string) {
	title = strings.TrimSpace(title)
	if title == "" || level <= 0 {
		return
	}
	b.flush()
	node := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, openSection{node: node, level: level})
}

// Paragraph appends body text to the innermost open section.
func (b *sectionBuilder) Paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(text)
}

func (b *sectionBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// Tree finalizes the builder. Text that appeared before the first heading is
// kept as a leading untitled node so it is not lost.
func (b *sectionBuilder) Tree(title string) *doctree.DocTree {
	b.flush()
	tree := &doctree.DocTree{Title: title}
	if b.root.Text != "" {
		tree.Children = append(tree.Children, &doctree.DocNode{Text: b.root.Text})
	}
	tree.Children = append(tree.Children, b.root.Children...)
	return tree
}
