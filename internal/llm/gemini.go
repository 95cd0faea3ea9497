package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/pdfrag/internal/metrics"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Embedding task types understood by Gemini embedding models.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// maxEmbedBatch is the Gemini limit on contents per embed request.
const maxEmbedBatch = 100

const systemInstruction = "You answer questions about the user's uploaded documents. " +
	"Use only the numbered context passages you are given and cite them as [n]. " +
	"If the passages do not contain the answer, say that you don't know."

type ClientConfig struct {
	APIKey            string
	Model             string
	EmbedModel        string
	EmbedBatchSize    int
	RequestsPerSecond float64
}

// Client calls the Gemini API for answer generation and embeddings. Every
// request passes through a shared rate limiter and circuit breaker.
type Client struct {
	genai      *genai.Client
	model      string
	embedModel string
	batchSize  int

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
	metrics *metrics.Metrics

	Stats *Stats
}

func NewClient(ctx context.Context, cfg ClientConfig, log *slog.Logger, m *metrics.Metrics) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	batch := cfg.EmbedBatchSize
	if batch <= 0 || batch > maxEmbedBatch {
		batch = maxEmbedBatch
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	c := &Client{
		genai:      gc,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		batchSize:  batch,
		limiter:    rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		log:        log,
		metrics:    m,
		Stats:      NewStats(time.Hour),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about Gemini's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

// EmbedModel returns the embedding model name.
func (c *Client) EmbedModel() string { return c.embedModel }

// Generate answers a fully assembled prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := c.call(ctx, OpGenerate, func(ctx context.Context) error {
		resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](0.2),
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		})
		if err != nil {
			return err
		}
		answer = resp.Text()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if answer == "" {
		return "", fmt.Errorf("generate: empty response from %s", c.model)
	}
	return answer, nil
}

// EmbedDocuments embeds chunk texts for storage, splitting into API-sized batches.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embed(ctx, texts[start:end], TaskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("embed documents [%d:%d]: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a user question for retrieval.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var vecs [][]float32
	err := c.call(ctx, OpEmbed, func(ctx context.Context) error {
		resp, err := c.genai.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
			TaskType: task,
		})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
		}
		vecs = make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return fmt.Errorf("empty embedding at position %d", i)
			}
			vecs[i] = e.Values
		}
		return nil
	})
	return vecs, err
}

// call runs fn under the limiter and breaker, retrying transient failures
// with backoff.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := range MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, classify(fn(ctx))
		})
		elapsed := time.Since(start)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.Stats.Record(op, elapsed, err)
		c.metrics.LLMCall(op, elapsed, err)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		wait := Backoff(attempt)
		c.log.Warn("retryable gemini error", "operation", op, "attempt", attempt+1, "backoff", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
