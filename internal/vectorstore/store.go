// Package vectorstore persists embedded chunks and the document catalog.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("document not found")

// Chunk is an embedded slice of a document.
type Chunk struct {
	ID        string
	DocID     string
	Source    string // original filename
	Page      int
	Index     int
	Text      string
	Embedding []float32
}

// Hit is a search result; Score is cosine similarity, higher is closer.
type Hit struct {
	Chunk
	Score float64
}

// Document is the catalog record for an indexed file.
type Document struct {
	ID           string    `json:"doc_id"`
	Filename     string    `json:"filename"`
	Title        string    `json:"title,omitempty"`
	ContentHash  string    `json:"content_hash"`
	Pages        int       `json:"pages"`
	Chunks       int       `json:"chunks"`
	ChunkSize    int       `json:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is implemented by every vector backend.
type Store interface {
	// Name identifies the backend in logs and stats.
	Name() string

	AddChunks(ctx context.Context, chunks []Chunk) error
	// Search returns at most k hits ordered by descending similarity.
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)

	PutDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	FindByHash(ctx context.Context, hash string) (Document, bool, error)
	// ListDocuments returns documents oldest first.
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument removes a document and its chunks, returning the number
	// of chunks removed.
	DeleteDocument(ctx context.Context, id string) (int, error)
	// DeleteChunks removes a document's chunks whether or not it has a
	// catalog record, returning the number removed.
	DeleteChunks(ctx context.Context, docID string) (int, error)
	// Reset removes every document and chunk.
	Reset(ctx context.Context) error
	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)
	Close() error
}

// ChunkID is the stable id of the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s-%04d", docID, index)
}
