// Package search answers semantic queries over ingested chunks and assembles
// retrieved content into a prompt-ready context block.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openkb/docbase/internal/store"
)

// ErrEmptyQuery indicates a query with no searchable text.
var ErrEmptyQuery = errors.New("query text is empty")

const (
	// DefaultTopK is the result count when the caller does not ask for one.
	DefaultTopK = 5

	// MaxTopK caps how many results a single query may request.
	MaxTopK = 20
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Nearest answers vector neighbor queries. Implemented by store.ChunkStore.
type Nearest interface {
	Nearest(ctx context.Context, vec []float32, k int, f Filter) ([]store.Match, error)
}

// Filter is re-exported so callers of this package do not need to import the
// storage layer for a plain two-field restriction.
type Filter = store.Filter

// Query is one semantic search request.
type Query struct {
	Text     string `json:"query"`
	TopK     int    `json:"k"`
	OwnerID  string `json:"-"`
	Category string `json:"category,omitempty"`
}

// Result is one scored hit. Score is cosine similarity shifted to
// 1 - distance: 1 means identical direction, 0 orthogonal, and values below
// zero are possible for vectors pointing away from the query. Results are
// ordered by score descending; the raw value is kept unclamped so callers
// can threshold on it meaningfully.
type Result struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Category   string    `json:"category"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Score      float64   `json:"similarity_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Response is a completed search.
type Response struct {
	Query            string   `json:"query"`
	Results          []Result `json:"results"`
	TotalResults     int      `json:"total_results"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// Searcher executes semantic queries. Safe for concurrent use.
//
// Retrieval is fail-soft: embedding or storage errors yield an empty
// Response, not an error, so a caller building a prompt degrades to answering
// without context instead of breaking. Failures are counted for the stats
// surface.
type Searcher struct {
	embedder Embedder
	chunks   Nearest
	logger   *slog.Logger
	failures atomic.Int64
}

// NewSearcher creates a Searcher. logger nil falls back to slog.Default().
func NewSearcher(embedder Embedder, chunks Nearest, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{embedder: embedder, chunks: chunks, logger: logger}
}

// Search runs one semantic query. Only invalid input returns an error;
// backend trouble degrades to an empty result set.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	k := q.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	if k > MaxTopK {
		k = MaxTopK
	}

	start := time.Now()
	resp := &Response{Query: text, Results: []Result{}}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return s.degrade(resp, fmt.Errorf("embedding query: %w", err)), nil
	}

	matches, err := s.chunks.Nearest(ctx, vec, k, Filter{OwnerID: q.OwnerID, Category: q.Category})
	if err != nil {
		return s.degrade(resp, fmt.Errorf("searching chunks: %w", err)), nil
	}

	for _, m := range matches {
		resp.Results = append(resp.Results, Result{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Filename:   m.Filename,
			Category:   m.Category,
			ChunkIndex: m.ChunkIndex,
			Content:    m.Content,
			Score:      1 - m.Distance,
			CreatedAt:  m.CreatedAt,
		})
	}
	resp.TotalResults = len(resp.Results)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	s.logger.Debug("search completed", "query_len", len(text), "k", k,
		"found", resp.TotalResults, "ms", resp.ProcessingTimeMs)
	return resp, nil
}

// Failures returns how many searches have degraded to empty results since
// startup.
func (s *Searcher) Failures() int64 {
	return s.failures.Load()
}

// degrade records a backend failure and hands back the empty response.
// ProcessingTimeMs stays zero so callers can tell a degraded answer from a
// fast genuine miss.
func (s *Searcher) degrade(resp *Response, cause error) *Response {
	s.failures.Add(1)
	s.logger.Error("search degraded to empty results", "error", cause)
	return resp
}

// BuildContext renders results as a source-attributed context block for
// prompt assembly. Each result becomes "[Source i: <filename>]\n<content>\n"
// with sources numbered from one in result order.
func BuildContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n", i+1, r.Filename, r.Content)
	}
	return b.String()
}
