package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

const (
	collectionName = "pdf_chunks"
	catalogFile    = "catalog.json"
)

// ChromemStore keeps vectors in chromem-go. With a path the collection and
// the document catalog are persisted under it; without one everything lives
// in memory.
type ChromemStore struct {
	db   *chromem.DB
	path string

	mu         sync.RWMutex
	collection *chromem.Collection
	docs       map[string]Document
}

func NewChromemStore(path string, compress bool) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	s := &ChromemStore{db: db, path: path, docs: make(map[string]Document)}
	if s.collection, err = s.openCollection(); err != nil {
		return nil, err
	}
	if err := s.loadCatalog(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemStore) Name() string { return "chromem" }

func (s *ChromemStore) openCollection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(collectionName, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return c, nil
}

func (s *ChromemStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		docs[i] = chromem.Document{
			ID: c.ID,
			Metadata: map[string]string{
				"doc_id": c.DocID,
				"source": c.Source,
				"page":   strconv.Itoa(c.Page),
				"index":  strconv.Itoa(c.Index),
			},
			Embedding: c.Embedding,
			Content:   c.Text,
		}
	}

	s.mu.RLock()
	col := s.collection
	s.mu.RUnlock()
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	col := s.collection
	s.mu.RUnlock()

	// chromem rejects a result count larger than the collection.
	k = min(k, col.Count())
	if k <= 0 {
		return nil, nil
	}
	res, err := col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(res))
	for _, r := range res {
		page, _ := strconv.Atoi(r.Metadata["page"])
		index, _ := strconv.Atoi(r.Metadata["index"])
		hits = append(hits, Hit{
			Chunk: Chunk{
				ID:     r.ID,
				DocID:  r.Metadata["doc_id"],
				Source: r.Metadata["source"],
				Page:   page,
				Index:  index,
				Text:   r.Content,
			},
			Score: float64(r.Similarity),
		})
	}
	return hits, nil
}

func (s *ChromemStore) PutDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return s.saveCatalog()
}

func (s *ChromemStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *ChromemStore) FindByHash(_ context.Context, hash string) (Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.ContentHash == hash {
			return doc, true, nil
		}
	}
	return Document{}, false, nil
}

func (s *ChromemStore) ListDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	s.mu.RUnlock()
	sortDocuments(out)
	return out, nil
}

func (s *ChromemStore) DeleteDocument(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return 0, ErrNotFound
	}

	removed, err := s.deleteChunks(ctx, id)
	if err != nil {
		return 0, err
	}

	delete(s.docs, id)
	if err := s.saveCatalog(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *ChromemStore) DeleteChunks(ctx context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteChunks(ctx, docID)
}

// deleteChunks requires s.mu held for writing.
func (s *ChromemStore) deleteChunks(ctx context.Context, docID string) (int, error) {
	before := s.collection.Count()
	if before == 0 {
		return 0, nil
	}
	if err := s.collection.Delete(ctx, map[string]string{"doc_id": docID}, nil); err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", docID, err)
	}
	return before - s.collection.Count(), nil
}

func (s *ChromemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	col, err := s.openCollection()
	if err != nil {
		return err
	}
	s.collection = col
	s.docs = make(map[string]Document)
	return s.saveCatalog()
}

func (s *ChromemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Close is a no-op: chromem writes each document through to disk as it is added.
func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) loadCatalog() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.path, catalogFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

// saveCatalog writes the catalog atomically. Callers hold s.mu.
func (s *ChromemStore) saveCatalog() error {
	if s.path == "" {
		return nil
	}
	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sortDocuments(docs)

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	tmp := filepath.Join(s.path, catalogFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.path, catalogFile)); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

func sortDocuments(docs []Document) {
	slices.SortFunc(docs, func(a, b Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
