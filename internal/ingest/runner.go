// Package ingest drives the document pipeline: claim, extract, split, embed,
// commit. One Run call owns one document from claim to settled outcome.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openkb/docbase/internal/chunk"
	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/store"
)

// Registry is the slice of document bookkeeping the pipeline needs.
type Registry interface {
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// ChunkStore persists pipeline output.
type ChunkStore interface {
	CommitIngestion(ctx context.Context, docID uuid.UUID, rows []store.Row) error
	PurgeForReprocess(ctx context.Context, docID uuid.UUID) error
}

// Extractor converts a stored file into plain text.
type Extractor interface {
	Extract(path, contentType string) (string, error)
}

// Embedder turns one text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Runner executes ingestion runs. Safe for concurrent use; concurrent runs on
// the same document are serialized by the claim, not by the Runner.
type Runner struct {
	registry  Registry
	chunks    ChunkStore
	extractor Extractor
	embedder  Embedder
	splitCfg  chunk.Config
	workers   int
	logger    *slog.Logger
}

// NewRunner creates a Runner. workers bounds concurrent embedding calls per
// run; values below 1 are raised to 1.
func NewRunner(registry Registry, chunks ChunkStore, extractor Extractor, embedder Embedder,
	splitCfg chunk.Config, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry:  registry,
		chunks:    chunks,
		extractor: extractor,
		embedder:  embedder,
		splitCfg:  splitCfg,
		workers:   workers,
		logger:    logger,
	}
}

// Run ingests one pending document end to end. On pipeline failure the
// document is settled as failed with the reason persisted, and the cause is
// returned. document.ErrConflict means another actor holds the document;
// nothing is changed in that case.
func (r *Runner) Run(ctx context.Context, id uuid.UUID) error {
	doc, err := r.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := r.registry.MarkProcessing(ctx, id); err != nil {
		return err
	}

	r.logger.Info("ingestion started", "document_id", id, "filename", doc.OriginalFilename)

	text, err := r.extractor.Extract(doc.FilePath, doc.ContentType)
	if err != nil {
		return r.fail(ctx, id, fmt.Errorf("extraction: %w", err))
	}

	pieces := chunk.Split(text, r.splitCfg)
	if len(pieces) == 0 {
		return r.fail(ctx, id, errors.New("splitting produced no chunks"))
	}

	rows, err := r.embedAll(ctx, pieces)
	if err != nil {
		return r.fail(ctx, id, fmt.Errorf("embedding: %w", err))
	}

	if err := r.chunks.CommitIngestion(ctx, id, rows); err != nil {
		if errors.Is(err, document.ErrConflict) || errors.Is(err, document.ErrNotFound) {
			// The document was deleted or reclaimed mid-run; the loser
			// backs off without overwriting the winner's state.
			return err
		}
		return r.fail(ctx, id, fmt.Errorf("committing chunks: %w", err))
	}

	r.logger.Info("ingestion completed", "document_id", id, "chunks", len(rows))
	return nil
}

// Reprocess purges a settled document's chunks, resets it to pending, and
// runs the pipeline again.
func (r *Runner) Reprocess(ctx context.Context, id uuid.UUID) error {
	if err := r.Reset(ctx, id); err != nil {
		return err
	}
	return r.Run(ctx, id)
}

// Reset purges chunks and returns the document to pending without running
// the pipeline. Callers that want the rerun asynchronous call Reset first,
// so conflicts surface synchronously, then Run in the background.
func (r *Runner) Reset(ctx context.Context, id uuid.UUID) error {
	return r.chunks.PurgeForReprocess(ctx, id)
}

// embedAll embeds every piece with bounded concurrency. Chunk indices are
// assigned before fan-out, so output order never depends on goroutine
// scheduling. The first error cancels the rest of the batch.
func (r *Runner) embedAll(ctx context.Context, pieces []string) ([]store.Row, error) {
	rows := make([]store.Row, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			rows[i] = store.Row{
				Index:      i,
				Content:    piece,
				Embedding:  vec,
				CharCount:  len(piece),
				TokenCount: chunk.TokenCount(piece),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// fail settles the document as failed, persisting cause as the reason, and
// returns cause. A lost race on the failure mark is logged and swallowed:
// the winner's outcome stands.
func (r *Runner) fail(ctx context.Context, id uuid.UUID, cause error) error {
	if err := r.registry.MarkFailed(ctx, id, cause.Error()); err != nil {
		r.logger.Warn("could not settle document as failed",
			"document_id", id, "cause", cause, "error", err)
	} else {
		r.logger.Error("ingestion failed", "document_id", id, "error", cause)
	}
	return cause
}
