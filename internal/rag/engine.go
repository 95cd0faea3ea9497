// Package rag answers questions from the indexed documents.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/pdfrag/internal/metrics"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoDocuments   = errors.New("no documents have been indexed")
)

// NoAnswer is returned when retrieval finds nothing relevant.
const NoAnswer = "I couldn't find any passages in your documents relevant to that question."

// Query outcomes reported to metrics.
const (
	OutcomeAnswered    = "answered"
	OutcomeNoHits      = "no_hits"
	OutcomeNoDocuments = "no_documents"
	OutcomeError       = "error"
)

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

type Config struct {
	DefaultTopK   int
	MaxTopK       int
	MinSimilarity float64
	PreviewChars  int
}

// Source is a passage the answer was grounded on.
type Source struct {
	Source      string  `json:"source"`
	Page        int     `json:"page"`
	TextPreview string  `json:"text_preview"`
	Score       float64 `json:"score"`
	DocID       string  `json:"doc_id"`
	ChunkIndex  int     `json:"chunk_index"`
	Cited       bool    `json:"cited"`
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Engine retrieves passages for a question and asks the model to answer
// from them.
type Engine struct {
	embedder  Embedder
	generator Generator
	store     vectorstore.Store
	cfg       Config
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewEngine(embedder Embedder, generator Generator, store vectorstore.Store, cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 10
	}
	if cfg.DefaultTopK <= 0 || cfg.DefaultTopK > cfg.MaxTopK {
		cfg.DefaultTopK = min(5, cfg.MaxTopK)
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 200
	}
	return &Engine{embedder: embedder, generator: generator, store: store, cfg: cfg, log: log, metrics: m}
}

// Model names the generation model answering queries.
func (e *Engine) Model() string { return e.generator.Model() }

// TopK clamps a requested result count into [1, MaxTopK], using the
// default for non-positive values.
func (e *Engine) TopK(k int) int {
	if k <= 0 {
		return e.cfg.DefaultTopK
	}
	return min(k, e.cfg.MaxTopK)
}

// Query answers question from the top k passages.
func (e *Engine) Query(ctx context.Context, question string, k int) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	k = e.TopK(k)
	start := time.Now()

	n, err := e.store.Count(ctx)
	if err != nil {
		e.metrics.Query(OutcomeError)
		return Answer{}, fmt.Errorf("count chunks: %w", err)
	}
	if n == 0 {
		e.metrics.Query(OutcomeNoDocuments)
		return Answer{}, ErrNoDocuments
	}

	vec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		e.metrics.Query(OutcomeError)
		return Answer{}, err
	}
	hits, err := e.store.Search(ctx, vec, k)
	if err != nil {
		e.metrics.Query(OutcomeError)
		return Answer{}, fmt.Errorf("search: %w", err)
	}

	relevant := hits[:0]
	for _, h := range hits {
		if h.Score >= e.cfg.MinSimilarity {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) == 0 {
		e.log.Info("no relevant passages", "k", k, "candidates", len(hits))
		e.metrics.Query(OutcomeNoHits)
		return Answer{Answer: NoAnswer, Sources: []Source{}}, nil
	}

	text, err := e.generator.Generate(ctx, BuildPrompt(question, relevant))
	if err != nil {
		e.metrics.Query(OutcomeError)
		return Answer{}, err
	}

	cited := citedPassages(text, len(relevant))
	sources := make([]Source, len(relevant))
	for i, h := range relevant {
		sources[i] = Source{
			Source:      h.Source,
			Page:        h.Page,
			TextPreview: Preview(h.Text, e.cfg.PreviewChars),
			Score:       h.Score,
			DocID:       h.DocID,
			ChunkIndex:  h.Index,
			Cited:       cited[i+1],
		}
	}

	e.log.Info("query answered", "k", k, "sources", len(sources), "cited", len(cited), "duration", time.Since(start))
	e.metrics.Query(OutcomeAnswered)
	return Answer{Answer: strings.TrimSpace(text), Sources: sources}, nil
}
