package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps chunks in a pgvector column and documents in a plain
// table. The schema is created on open.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string, dim int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx, dim); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) migrate(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
  doc_id        TEXT PRIMARY KEY,
  filename      TEXT NOT NULL,
  title         TEXT NOT NULL DEFAULT '',
  content_hash  TEXT NOT NULL,
  pages         INT NOT NULL DEFAULT 0,
  chunks        INT NOT NULL DEFAULT 0,
  chunk_size    INT NOT NULL DEFAULT 0,
  chunk_overlap INT NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS documents_content_hash_idx ON documents (content_hash)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
  chunk_id    TEXT PRIMARY KEY,
  doc_id      TEXT NOT NULL,
  source      TEXT NOT NULL,
  page        INT NOT NULL DEFAULT 0,
  chunk_index INT NOT NULL,
  text        TEXT NOT NULL,
  embedding   vector(%d) NOT NULL
)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_doc_id_idx ON chunks (doc_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx add chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, doc_id, source, page, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding`,
			c.ID, c.DocID, c.Source, c.Page, c.Index, c.Text, vectorLiteral(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT chunk_id, doc_id, source, page, chunk_index, text,
       1 - (embedding <=> $1::vector) AS score
FROM chunks
ORDER BY embedding <=> $1::vector
LIMIT $2`, vectorLiteral(vec), k)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.DocID, &h.Source, &h.Page, &h.Index, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, doc Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (doc_id, filename, title, content_hash, pages, chunks, chunk_size, chunk_overlap, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (doc_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  title = EXCLUDED.title,
  content_hash = EXCLUDED.content_hash,
  pages = EXCLUDED.pages,
  chunks = EXCLUDED.chunks,
  chunk_size = EXCLUDED.chunk_size,
  chunk_overlap = EXCLUDED.chunk_overlap`,
		doc.ID, doc.Filename, doc.Title, doc.ContentHash, doc.Pages, doc.Chunks, doc.ChunkSize, doc.ChunkOverlap, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

const documentColumns = `doc_id, filename, title, content_hash, pages, chunks, chunk_size, chunk_overlap, created_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Filename, &d.Title, &d.ContentHash, &d.Pages, &d.Chunks, &d.ChunkSize, &d.ChunkOverlap, &d.CreatedAt)
	return d, err
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (Document, bool, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = $1 ORDER BY created_at LIMIT 1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("find document by hash: %w", err)
	}
	return d, true, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at ASC, doc_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]Document, 0, 16)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteChunks(ctx context.Context, docID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", docID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx delete document: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE doc_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	tag, err = tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete tx: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE chunks, documents`); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders v in pgvector's text format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
