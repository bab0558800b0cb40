// Package store persists chunks and their embeddings in PostgreSQL with
// pgvector, and answers nearest-neighbor queries over them.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/openkb/docbase/internal/document"
)

// Row is one chunk ready for persistence. Index positions the chunk within
// its document; rows for a document must arrive with contiguous indices
// starting at zero.
type Row struct {
	Index      int
	Content    string
	Embedding  []float32
	CharCount  int
	TokenCount int
}

// Match is one nearest-neighbor result. Distance is the cosine distance in
// [0, 2]; smaller is closer.
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Filename   string
	Category   string
	ChunkIndex int
	Content    string
	Distance   float64
	CreatedAt  time.Time
}

// Filter restricts a nearest-neighbor query. Zero values match everything.
type Filter struct {
	OwnerID  string
	Category string
}

// ChunkStore reads and writes the chunks table. Safe for concurrent use.
type ChunkStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewChunkStore creates a ChunkStore. logger nil falls back to slog.Default().
func NewChunkStore(pool *pgxpool.Pool, logger *slog.Logger) *ChunkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStore{pool: pool, logger: logger}
}

// CommitIngestion atomically persists all chunks of a processing document and
// flips it to completed. Either every chunk lands and the document completes,
// or nothing is written; a failed or deleted document can therefore never
// have chunks attached.
//
// Returns document.ErrConflict when the document is no longer in processing
// state (a concurrent delete or reprocess won), document.ErrNotFound when the
// row is gone.
func (s *ChunkStore) CommitIngestion(ctx context.Context, docID uuid.UUID, rows []Row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ingestion commit: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, content, embedding, char_count, token_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), docID, r.Index, r.Content,
			pgvector.NewVector(r.Embedding), r.CharCount, r.TokenCount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks for %s: %w", docID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2, total_chunks = $3, error_message = '',
		    processed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4`,
		docID, string(document.StatusCompleted), len(rows), string(document.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to complete document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		// Rolled back by the deferred Rollback; the chunks never land.
		if exists, exErr := s.documentExists(ctx, docID); exErr == nil && !exists {
			return document.ErrNotFound
		}
		return document.ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ingestion for %s: %w", docID, err)
	}

	s.logger.Debug("committed ingestion", "document_id", docID, "chunks", len(rows))
	return nil
}

// PurgeForReprocess deletes a document's chunks and resets it to pending in
// one transaction. Only completed and failed documents can be reprocessed;
// anything else returns document.ErrConflict.
func (s *ChunkStore) PurgeForReprocess(ctx context.Context, docID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reprocess purge: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("failed to purge chunks for %s: %w", docID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2, total_chunks = 0, error_message = '',
		    processed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		docID, string(document.StatusPending),
		[]string{string(document.StatusCompleted), string(document.StatusFailed)})
	if err != nil {
		return fmt.Errorf("failed to reset document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		if exists, exErr := s.documentExists(ctx, docID); exErr == nil && !exists {
			return document.ErrNotFound
		}
		return document.ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reprocess purge for %s: %w", docID, err)
	}

	s.logger.Debug("purged document for reprocess", "document_id", docID)
	return nil
}

// DeleteByDocument removes all chunks of a document without touching the
// document row. Document deletion itself relies on the FK cascade instead.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, docID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", docID, err)
	}
	return tag.RowsAffected(), nil
}

// Nearest returns the k chunks closest to vec by cosine distance, restricted
// to completed documents matching the filter, ordered closest first.
func (s *ChunkStore) Nearest(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	if k <= 0 {
		k = 5
	}

	query := `
		SELECT c.id, c.document_id, d.original_filename, d.category, c.chunk_index, c.content,
		       c.embedding <=> $1 AS distance, c.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = $2`
	args := []any{pgvector.NewVector(vec), string(document.StatusCompleted)}

	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		query += fmt.Sprintf(" AND d.owner_id = $%d", len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND d.category = $%d", len(args))
	}

	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY distance LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Filename, &m.Category,
			&m.ChunkIndex, &m.Content, &m.Distance, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query nearest chunks: %w", err)
	}

	return matches, nil
}

// ChunksByDocument returns a document's chunks in index order, embeddings
// omitted. Used for inspection endpoints and tests.
func (s *ChunkStore) ChunksByDocument(ctx context.Context, docID uuid.UUID) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_index, content, char_count, token_count
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks for %s: %w", docID, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Index, &r.Content, &r.CharCount, &r.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list chunks for %s: %w", docID, err)
	}
	return out, nil
}

func (s *ChunkStore) documentExists(ctx context.Context, docID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, docID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
