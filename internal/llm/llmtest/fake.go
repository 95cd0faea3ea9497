// Package llmtest provides deterministic stand-ins for the Gemini client.
package llmtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Dim is the vector size produced by Embedder.
const Dim = 64

// Embedder hashes lower-cased words into a fixed-size bag-of-words vector,
// so texts sharing vocabulary land close together.
type Embedder struct {
	mu sync.Mutex
	// Err, when set, is returned by every call.
	Err error
	// FailOn makes EmbedDocuments fail for any batch containing this substring.
	FailOn string

	DocumentCalls int
	QueryCalls    int
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.DocumentCalls++
	err, failOn := e.Err, e.FailOn
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if failOn != "" && strings.Contains(t, failOn) {
			return nil, &FailError{Text: failOn}
		}
		out[i] = Vector(t)
	}
	return out, ctx.Err()
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.QueryCalls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return Vector(text), ctx.Err()
}

// FailError is returned for batches matching Embedder.FailOn.
type FailError struct{ Text string }

func (e *FailError) Error() string { return "embedding rejected text containing " + e.Text }

// Vector returns the normalized hashed bag-of-words vector for text.
func Vector(text string) []float32 {
	v := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// Generator records prompts and replies with a canned answer.
type Generator struct {
	mu      sync.Mutex
	Answer  string
	Err     error
	Prompts []string
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)
	if g.Err != nil {
		return "", g.Err
	}
	if g.Answer == "" {
		return "According to the documents [1].", nil
	}
	return g.Answer, nil
}

func (g *Generator) Model() string { return "fake-model" }

// Calls reports how many prompts were generated.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts)
}
