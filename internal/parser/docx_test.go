package parser

import (
	"bytes"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOCXParser_HeadingTree(t *testing.T) {
	doc := docx.New().WithDefaultTheme()
	doc.AddParagraph().AddText("Preface before any heading.")
	doc.AddParagraph().Style("Heading1").AddText("Methods")
	doc.AddParagraph().AddText("We sampled forty sites.")
	doc.AddParagraph().Style("Heading2").AddText("Sampling")
	doc.AddParagraph().AddText("Each site was visited twice.")
	doc.AddParagraph().Style("Heading1").AddText("Results")
	doc.AddParagraph().AddText("Most sites recovered.")

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	tree, err := (&DOCXParser{}).Parse(bytes.NewReader(buf.Bytes()), "study.docx")
	require.NoError(t, err)

	assert.Equal(t, "study", tree.Title)
	require.Len(t, tree.Children, 3)
	assert.Equal(t, "Preface before any heading.", tree.Children[0].Text)

	methods := tree.Children[1]
	assert.Equal(t, "Methods", methods.Title)
	assert.Equal(t, "We sampled forty sites.", methods.Text)
	require.Len(t, methods.Children, 1)
	assert.Equal(t, "Sampling", methods.Children[0].Title)
	assert.Equal(t, "Each site was visited twice.", methods.Children[0].Text)

	results := tree.Children[2]
	assert.Equal(t, "Results", results.Title)
	assert.Equal(t, "Most sites recovered.", results.Text)
	assert.Empty(t, results.Children)
}

func TestDOCXParser_Garbage(t *testing.T) {
	_, err := (&DOCXParser{}).Parse(bytes.NewReader([]byte("not a zip")), "broken.docx")
	assert.Error(t, err)
}
