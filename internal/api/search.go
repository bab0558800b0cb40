package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/log"
	"github.com/openkb/docbase/internal/search"
)

// MaxQueryLength caps the searchable text of one query.
const MaxQueryLength = 10000

// SearchService executes semantic queries. Implemented by search.Searcher.
type SearchService interface {
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	Failures() int64
}

// SearchHandler handles search and stats endpoints.
type SearchHandler struct {
	searcher SearchService
	registry DocumentRegistry
	logger   log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher SearchService, registry DocumentRegistry, logger log.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, registry: registry, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search", h.search)
	mux.HandleFunc("GET /api/v1/stats", h.stats)
}

// search runs one semantic query scoped to the calling owner.
func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(q.Text) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "query too long", "")
		return
	}
	q.OwnerID = ownerID(r)

	resp, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "empty query", "query text is required")
			return
		}
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed", "")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatsResponse is the knowledge-base overview.
type StatsResponse struct {
	*document.Stats
	SearchFailures int64 `json:"search_failures"`
}

// stats returns document aggregates for the calling owner plus process-wide
// search failure counts.
func (h *SearchHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.Stats(r.Context(), ownerID(r))
	if err != nil {
		h.logger.Error("failed to aggregate stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats", "")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: stats, SearchFailures: h.searcher.Failures()})
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
