package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pdfrag/internal/chunker"
	"github.com/dgallion1/pdfrag/internal/doctree"
	"github.com/dgallion1/pdfrag/internal/metrics"
	"github.com/dgallion1/pdfrag/internal/parser"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

// Embedder turns chunk texts into vectors, one per input in order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// WorkerConfig bounds a worker's embedding fan-out.
type WorkerConfig struct {
	EmbedBatchSize     int
	MaxConcurrentEmbed int
	ParserOptions      parser.Options
}

// Worker processes a single document job.
type Worker struct {
	embedder Embedder
	store    vectorstore.Store
	log      *slog.Logger
	metrics  *metrics.Metrics
	cfg      WorkerConfig
	inflight *hashLocks
}

func NewWorker(embedder Embedder, store vectorstore.Store, log *slog.Logger, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 50
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 1
	}
	return &Worker{embedder: embedder, store: store, log: log, metrics: m, cfg: cfg, inflight: newHashLocks()}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)
	start := time.Now()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename, w.cfg.ParserOptions)
	if err != nil {
		log.Error("unsupported format", "error", err)
		w.fail(job, "parsing", err.Error())
		return
	}

	tree, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		w.fail(job, "parsing", fmt.Sprintf("parse: %s", err))
		return
	}

	// Compute content hash from the parsed text.
	contentHash := ContentHashHex([]byte(flattenTreeText(tree)))
	job.SetParsed(tree.Title, tree.Pages, contentHash)

	// Phase 1.5: Dedup check. Jobs with the same content run one at a time
	// from here on, so a second copy sees the first one's catalog record.
	unlock := w.inflight.Lock(contentHash)
	defer unlock()
	existing, found, err := w.store.FindByHash(ctx, contentHash)
	if err != nil {
		log.Warn("dedup check failed, proceeding", "error", err)
	} else if found {
		log.Info("duplicate document, skipping", "existing_doc_id", existing.ID)
		job.SetDocID(existing.ID)
		w.finish(job, StatusDupSkipped, "dedup")
		return
	}

	// Phase 2: Chunk
	job.SetStatus(StatusChunking, "chunking")
	chunkCfg := chunker.Config{ChunkSize: job.ChunkSize, ChunkOverlap: job.ChunkOverlap}.Normalize()
	chunks := chunker.ChunkTree(tree, chunkCfg)
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "pages", tree.Pages,
		"chunk_size", chunkCfg.ChunkSize, "chunk_overlap", chunkCfg.ChunkOverlap)

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		w.fail(job, "chunking", "no extractable content")
		return
	}

	// Phase 3: Embed batches with bounded concurrency. A failed batch is
	// recorded and skipped; the rest of the document still gets indexed.
	job.SetStatus(StatusEmbedding, "embedding")
	embedded := w.embedBatches(ctx, job, chunks, log)
	if ctx.Err() != nil {
		w.fail(job, "embedding", ctx.Err().Error())
		return
	}

	hadErrors := len(embedded) < len(chunks)
	if len(embedded) == 0 {
		w.finish(job, StatusFailed, "embedding")
		return
	}

	// Phase 4: Store chunks, then the catalog record.
	job.SetStatus(StatusStoring, "storing")
	records := make([]vectorstore.Chunk, len(embedded))
	for i, e := range embedded {
		records[i] = vectorstore.Chunk{
			ID:        vectorstore.ChunkID(job.DocID, e.chunk.Index),
			DocID:     job.DocID,
			Source:    job.Filename,
			Page:      e.chunk.Page,
			Index:     e.chunk.Index,
			Text:      e.chunk.Text,
			Embedding: e.vec,
		}
	}
	if err := w.store.AddChunks(ctx, records); err != nil {
		log.Error("store failed", "error", err)
		w.discardChunks(ctx, job, log)
		w.fail(job, "storing", fmt.Sprintf("store: %s", err))
		return
	}
	job.SetStored(len(records))
	w.metrics.ChunksIndexed(len(records))

	snap := job.Snapshot()
	err = w.store.PutDocument(ctx, vectorstore.Document{
		ID:           job.DocID,
		Filename:     job.Filename,
		Title:        snap.Title,
		ContentHash:  contentHash,
		Pages:        snap.Progress.Pages,
		Chunks:       len(records),
		ChunkSize:    chunkCfg.ChunkSize,
		ChunkOverlap: chunkCfg.ChunkOverlap,
		CreatedAt:    job.CreatedAt,
	})
	if err != nil {
		log.Error("catalog write failed", "error", err)
		w.discardChunks(ctx, job, log)
		w.fail(job, "storing", fmt.Sprintf("catalog: %s", err))
		return
	}

	log.Info("document indexed", "stored", len(records), "total", len(chunks), "duration", time.Since(start))
	if hadErrors {
		w.finish(job, StatusPartial, "done")
	} else {
		w.finish(job, StatusCompleted, "done")
	}
}

type embeddedChunk struct {
	chunk doctree.Chunk
	vec   []float32
}

// embedBatches returns the chunks that embedded successfully, in document order.
func (w *Worker) embedBatches(ctx context.Context, job *Job, chunks []doctree.Chunk, log *slog.Logger) []embeddedChunk {
	size := w.cfg.EmbedBatchSize
	nBatches := (len(chunks) + size - 1) / size
	results := make([][]embeddedChunk, nBatches)

	var g errgroup.Group
	g.SetLimit(w.cfg.MaxConcurrentEmbed)
	for b := range nBatches {
		batch := chunks[b*size : min((b+1)*size, len(chunks))]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := w.embedder.EmbedDocuments(ctx, texts)
			if err == nil && len(vecs) != len(batch) {
				err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vecs))
			}
			if err != nil {
				log.Error("embedding batch failed", "batch", b, "error", err)
				job.AddError(fmt.Sprintf("batch %d (chunks %d-%d): %s", b, batch[0].Index, batch[len(batch)-1].Index, err))
				return nil
			}
			out := make([]embeddedChunk, len(batch))
			for i, c := range batch {
				out[i] = embeddedChunk{chunk: c, vec: vecs[i]}
			}
			results[b] = out
			job.AddEmbedded(len(batch))
			return nil
		})
	}
	_ = g.Wait()

	var all []embeddedChunk
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// discardChunks removes whatever chunks a failed store phase left behind.
// Without a catalog record they would be searchable but not deletable.
func (w *Worker) discardChunks(ctx context.Context, job *Job, log *slog.Logger) {
	n, err := w.store.DeleteChunks(context.WithoutCancel(ctx), job.DocID)
	if err != nil {
		log.Error("discard chunks failed", "error", err)
		job.AddError(fmt.Sprintf("cleanup: %s", err))
		return
	}
	job.SetStored(0)
	if n > 0 {
		log.Warn("discarded chunks after failed store", "chunks", n)
	}
}

func (w *Worker) fail(job *Job, phase, msg string) {
	job.AddError(msg)
	w.finish(job, StatusFailed, phase)
}

func (w *Worker) finish(job *Job, status JobStatus, phase string) {
	job.SetStatus(status, phase)
	w.metrics.JobFinished(string(status))
}

// flattenTreeText extracts all text from a DocTree into a single string for hashing.
func flattenTreeText(tree *doctree.DocTree) string {
	var sb strings.Builder
	tree.Walk(func(n *doctree.DocNode) {
		if n.Text == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(n.Text)
	})
	return sb.String()
}
