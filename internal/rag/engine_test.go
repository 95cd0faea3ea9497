package rag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pdfrag/internal/llm/llmtest"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

func seededStore(t *testing.T) vectorstore.Store {
	t.Helper()
	s, err := vectorstore.NewChromemStore("", false)
	require.NoError(t, err)
	texts := []string{
		"Mitochondria are the powerhouse of the cell and produce ATP.",
		"Photosynthesis converts light into chemical energy in plants.",
		"The Peace of Westphalia was signed in 1648.",
	}
	chunks := make([]vectorstore.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorstore.Chunk{
			ID:        vectorstore.ChunkID("doc1", i),
			DocID:     "doc1",
			Source:    "notes.pdf",
			Page:      i + 1,
			Index:     i,
			Text:      text,
			Embedding: llmtest.Vector(text),
		}
	}
	require.NoError(t, s.AddChunks(context.Background(), chunks))
	return s
}

func newEngine(store vectorstore.Store, gen *llmtest.Generator, cfg Config) *Engine {
	return NewEngine(&llmtest.Embedder{}, gen, store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestQuery_AnswersWithSources(t *testing.T) {
	gen := &llmtest.Generator{Answer: "Mitochondria produce ATP [1]."}
	e := newEngine(seededStore(t), gen, Config{DefaultTopK: 2, MaxTopK: 10, PreviewChars: 200})

	ans, err := e.Query(context.Background(), "  What is the powerhouse of the cell?  ", 0)
	require.NoError(t, err)

	assert.Equal(t, "Mitochondria produce ATP [1].", ans.Answer)
	require.Len(t, ans.Sources, 2, "default k applies")
	top := ans.Sources[0]
	assert.Equal(t, "notes.pdf", top.Source)
	assert.Equal(t, 1, top.Page)
	assert.Equal(t, "doc1", top.DocID)
	assert.Equal(t, 0, top.ChunkIndex)
	assert.True(t, top.Cited)
	assert.False(t, ans.Sources[1].Cited)
	assert.GreaterOrEqual(t, ans.Sources[0].Score, ans.Sources[1].Score)

	require.Equal(t, 1, gen.Calls())
	prompt := gen.Prompts[0]
	assert.Contains(t, prompt, "[1] notes.pdf (page 1)")
	assert.Contains(t, prompt, "[2] notes.pdf (page ")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is the powerhouse of the cell?"))
}

func TestQuery_ClampsK(t *testing.T) {
	e := newEngine(seededStore(t), &llmtest.Generator{}, Config{DefaultTopK: 1, MaxTopK: 2})
	ans, err := e.Query(context.Background(), "cell energy", 50)
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 2)

	assert.Equal(t, 1, e.TopK(0))
	assert.Equal(t, 1, e.TopK(-3))
	assert.Equal(t, 2, e.TopK(9))
}

func TestQuery_EmptyQuestion(t *testing.T) {
	gen := &llmtest.Generator{}
	e := newEngine(seededStore(t), gen, Config{})
	_, err := e.Query(context.Background(), " \n\t", 3)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, gen.Calls())
}

func TestQuery_NoDocuments(t *testing.T) {
	empty, err := vectorstore.NewChromemStore("", false)
	require.NoError(t, err)
	e := newEngine(empty, &llmtest.Generator{}, Config{})
	_, err = e.Query(context.Background(), "anything?", 3)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestQuery_BelowSimilarityFloorSkipsModel(t *testing.T) {
	gen := &llmtest.Generator{}
	e := newEngine(seededStore(t), gen, Config{MinSimilarity: 0.999})

	ans, err := e.Query(context.Background(), "quantum chromodynamics lattice", 3)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
	assert.NotNil(t, ans.Sources)
	assert.Zero(t, gen.Calls())
}

func TestQuery_GeneratorError(t *testing.T) {
	boom := errors.New("gemini unavailable")
	e := newEngine(seededStore(t), &llmtest.Generator{Err: boom}, Config{})
	_, err := e.Query(context.Background(), "cell", 2)
	assert.ErrorIs(t, err, boom)
}

func TestBuildPrompt_OmitsPageForUnpaginated(t *testing.T) {
	p := BuildPrompt("Why?", []vectorstore.Hit{{Chunk: vectorstore.Chunk{Source: "readme.md", Text: "  because  "}}})
	assert.Contains(t, p, "[1] readme.md\nbecause\n")
	assert.NotContains(t, p, "(page")
}

func TestCitedPassages(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		n      int
		want   map[int]bool
	}{
		{"single", "See [1] and [3], not [x] or [12b].", 5, map[int]bool{1: true, 3: true}},
		{"grouped", "Both agree [1, 2].", 5, map[int]bool{1: true, 2: true}},
		{"range", "Covered in [2-4].", 5, map[int]bool{2: true, 3: true, 4: true}},
		{"en dash range", "Covered in [1\u20132].", 5, map[int]bool{1: true, 2: true}},
		{"mixed group", "See [1, 3-4].", 5, map[int]bool{1: true, 3: true, 4: true}},
		{"out of range dropped", "See [0] and [2-9] and [7].", 3, map[int]bool{2: true, 3: true}},
		{"reversed range ignored", "See [4-2].", 5, map[int]bool{}},
		{"huge range clamped", "See [1-999999999].", 2, map[int]bool{1: true, 2: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, citedPassages(tc.answer, tc.n))
		})
	}
}

func TestQuery_GroupedCitationsMarkSources(t *testing.T) {
	gen := &llmtest.Generator{Answer: "Energy comes from both [1, 2]."}
	e := newEngine(seededStore(t), gen, Config{DefaultTopK: 3, MaxTopK: 10, PreviewChars: 200})

	ans, err := e.Query(context.Background(), "where does cell energy come from", 3)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(ans.Sources), 2)
	assert.True(t, ans.Sources[0].Cited)
	assert.True(t, ans.Sources[1].Cited)
	for _, src := range ans.Sources[2:] {
		assert.False(t, src.Cited)
	}
}

func TestPreview(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"short text unchanged", "hello world", 20, "hello world"},
		{"whitespace collapsed", "hello\n\n  world", 20, "hello world"},
		{"cut at word boundary", "the quick brown fox jumps", 12, "the quick..."},
		{"long word cut mid-word", "supercalifragilistic", 5, "super..."},
		{"multibyte safe", "ééééé ééééé", 7, "ééééé..."},
		{"no limit", "anything goes", 0, "anything goes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Preview(tc.text, tc.limit))
		})
	}
}
