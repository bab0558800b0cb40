//go:build integration
// +build integration

package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkb/docbase/internal/chunk"
	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/embed"
	"github.com/openkb/docbase/internal/extract"
	"github.com/openkb/docbase/internal/filestore"
	"github.com/openkb/docbase/internal/ingest"
	"github.com/openkb/docbase/internal/search"
	"github.com/openkb/docbase/internal/store"
	"github.com/openkb/docbase/internal/testutil"
)

const pipelineDim = 768

// pipeline bundles a fully wired stack over a throwaway database, with the
// embedding provider mocked deterministically.
type pipeline struct {
	registry *document.Registry
	chunks   *store.ChunkStore
	runner   *ingest.Runner
	searcher *search.Searcher
	files    *filestore.Store
}

func newPipeline(t *testing.T) (*pipeline, func()) {
	t.Helper()

	testDB, cleanup := testutil.SetupTestDB(t)

	logger := testutil.Logger()
	files, err := filestore.New(filepath.Join(t.TempDir(), "uploads"), logger)
	require.NoError(t, err)

	embedder := embed.New(&testutil.MockEmbedder{Dim: pipelineDim},
		"mock-model", pipelineDim, 0, logger)
	registry := document.NewRegistry(testDB.Pool, files, logger)
	chunks := store.NewChunkStore(testDB.Pool, logger)
	runner := ingest.NewRunner(registry, chunks, extract.NewEngine(logger), embedder,
		chunk.Config{Size: 200, Overlap: 40}, 4, logger)

	return &pipeline{
		registry: registry,
		chunks:   chunks,
		runner:   runner,
		searcher: search.NewSearcher(embedder, chunks, logger),
		files:    files,
	}, cleanup
}

// uploadText saves content as a file and registers a pending document.
func (p *pipeline) uploadText(t *testing.T, owner, category, name, content string) *document.Document {
	t.Helper()

	saved, err := p.files.Save(strings.NewReader(content), name)
	require.NoError(t, err)

	doc, err := p.registry.Register(context.Background(), document.NewDocument{
		OwnerID:          owner,
		Filename:         saved.Filename,
		OriginalFilename: name,
		FilePath:         saved.Path,
		FileSize:         saved.Size,
		ContentType:      "text/plain",
		Category:         category,
	})
	require.NoError(t, err)
	return doc
}

func TestPipeline_UploadIngestSearch(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	content := "The vacation policy grants twenty days of paid leave per year. " +
		strings.Repeat("Additional details about accrual and carryover rules. ", 10)
	doc := p.uploadText(t, "alice", "hr", "vacation.txt", content)

	require.NoError(t, p.runner.Run(ctx, doc.ID))

	got, err := p.registry.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)
	assert.Positive(t, got.TotalChunks)
	assert.NotNil(t, got.ProcessedAt)
	assert.Empty(t, got.ErrorMessage)

	rows, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, got.TotalChunks)
	for i, r := range rows {
		assert.Equal(t, i, r.Index)
		assert.NotEmpty(t, r.Content)
	}

	resp, err := p.searcher.Search(ctx, search.Query{
		Text: rows[0].Content, OwnerID: "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, rows[0].Content, resp.Results[0].Content)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-3,
		"identical text must score at the top of the similarity range")
	assert.Equal(t, doc.ID, resp.Results[0].DocumentID)
}

func TestPipeline_FailureLeavesNoChunks(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	doc := p.uploadText(t, "alice", "hr", "empty.txt", "   \n  ")

	err := p.runner.Run(ctx, doc.ID)
	require.Error(t, err)

	got, getErr := p.registry.Get(ctx, doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, document.StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage, "failure reason must be persisted")
	assert.Zero(t, got.TotalChunks)

	rows, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "a failed document must have no chunks")
}

func TestPipeline_Reprocess(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	doc := p.uploadText(t, "alice", "hr", "policy.txt",
		strings.Repeat("Original policy text with enough words to chunk. ", 20))
	require.NoError(t, p.runner.Run(ctx, doc.ID))

	first, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)

	require.NoError(t, p.runner.Reprocess(ctx, doc.ID))

	got, err := p.registry.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)

	second, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, second, len(first), "same input must regenerate the same chunking")
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestPipeline_ReprocessRejectedWhilePending(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()

	doc := p.uploadText(t, "alice", "hr", "fresh.txt", "content")
	err := p.runner.Reprocess(context.Background(), doc.ID)
	assert.ErrorIs(t, err, document.ErrConflict)
}

func TestPipeline_DeleteCascades(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	doc := p.uploadText(t, "alice", "hr", "doomed.txt",
		strings.Repeat("Text that will be deleted along with its chunks. ", 20))
	require.NoError(t, p.runner.Run(ctx, doc.ID))

	got, err := p.registry.Get(ctx, doc.ID)
	require.NoError(t, err)

	require.NoError(t, p.registry.Delete(ctx, doc.ID))

	rows, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "chunks must cascade with the document row")

	_, statErr := os.Stat(got.FilePath)
	assert.Error(t, statErr)

	resp, err := p.searcher.Search(ctx, search.Query{Text: "deleted along with its chunks", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "deleted content must not be searchable")
}

func TestPipeline_ConcurrentReprocessOnSameDocument(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	doc := p.uploadText(t, "alice", "hr", "churned.txt",
		strings.Repeat("Document that gets reprocessed by racing callers. ", 20))
	require.NoError(t, p.runner.Run(ctx, doc.ID))

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- p.runner.Reprocess(ctx, doc.ID) }()
	}
	first, second := <-errs, <-errs

	// Only one caller can reset the settled document; the other loses the
	// purge and must not touch anything.
	winners := 0
	for _, err := range []error{first, second} {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, document.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)

	got, err := p.registry.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)

	rows, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, got.TotalChunks, "chunk count must stay consistent after the race")
	for i, r := range rows {
		assert.Equal(t, i, r.Index)
	}
}

func TestPipeline_ConcurrentRunsOnSameDocument(t *testing.T) {
	p, cleanup := newPipeline(t)
	defer cleanup()
	ctx := context.Background()

	doc := p.uploadText(t, "alice", "hr", "contested.txt",
		strings.Repeat("Contested document content for racing runners. ", 20))

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- p.runner.Run(ctx, doc.ID) }()
	}
	first, second := <-errs, <-errs

	// Exactly one run wins the claim; the loser gets a conflict.
	winners := 0
	for _, err := range []error{first, second} {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, document.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)

	got, err := p.registry.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)

	rows, err := p.chunks.ChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, rows, got.TotalChunks, "chunk count must stay consistent after the race")
}
