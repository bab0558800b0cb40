package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openkb/docbase/internal/document"
	"github.com/openkb/docbase/internal/extract"
	"github.com/openkb/docbase/internal/filestore"
	"github.com/openkb/docbase/internal/log"
)

// Upload validation constants.
const (
	// MaxUploadBytes caps one upload's size.
	MaxUploadBytes = 50 << 20

	// multipartMemory is how much of a parsed form stays in memory before
	// spilling to temp files.
	multipartMemory = 8 << 20

	MaxDescriptionLength = 2000
	MaxCategoryLength    = 100
	MaxTags              = 20

	// DefaultOwner is assumed when the request carries no X-Owner-ID header.
	DefaultOwner = "default"

	// ingestTimeout bounds one background ingestion run.
	ingestTimeout = 10 * time.Minute
)

// DocumentRegistry is the document bookkeeping surface the handlers need.
type DocumentRegistry interface {
	Register(ctx context.Context, nd document.NewDocument) (*document.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	List(ctx context.Context, f document.ListFilter) ([]*document.Document, int, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, upd document.MetadataUpdate) (*document.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, owner string) (*document.Stats, error)
}

// Uploader stores raw upload bytes. Implemented by filestore.Store.
type Uploader interface {
	Save(r io.Reader, originalName string) (filestore.SavedFile, error)
	Remove(path string) error
}

// Ingestor runs the pipeline. Implemented by ingest.Runner.
type Ingestor interface {
	Run(ctx context.Context, id uuid.UUID) error
	Reset(ctx context.Context, id uuid.UUID) error
}

// DocumentHandler handles document CRUD and pipeline endpoints.
type DocumentHandler struct {
	registry DocumentRegistry
	files    Uploader
	runner   Ingestor
	logger   log.Logger

	wg sync.WaitGroup
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(registry DocumentRegistry, files Uploader, runner Ingestor, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{registry: registry, files: files, runner: runner, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.upload)
	mux.HandleFunc("GET /api/v1/documents", h.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.get)
	mux.HandleFunc("PATCH /api/v1/documents/{id}", h.update)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.delete)
	mux.HandleFunc("POST /api/v1/documents/{id}/reprocess", h.reprocess)
}

// Wait blocks until all background ingestion runs launched by this handler
// have finished. Called on shutdown and by tests.
func (h *DocumentHandler) Wait() {
	h.wg.Wait()
}

// background launches an ingestion run detached from the request that
// triggered it, so a closed client connection cannot abort the pipeline.
func (h *DocumentHandler) background(id uuid.UUID) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if err := h.runner.Run(ctx, id); err != nil {
			// Run settles the document itself; this is for operators only.
			h.logger.Debug("background ingestion returned", "document_id", id, "error", err)
		}
	}()
}

// ownerID extracts the calling owner, falling back to the shared default.
func ownerID(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get("X-Owner-ID")); owner != "" {
		return owner
	}
	return DefaultOwner
}

// upload accepts a multipart form with a "file" part plus optional category,
// description and tags fields, registers the document, and starts ingestion
// in the background. Responds 201 with the pending document.
func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "uploads are limited to 50MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file", `multipart field "file" is required`)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "missing filename", "uploaded file has no name")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if extract.Classify(contentType, header.Filename) == extract.KindUnsupported {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type",
			"no extraction strategy for "+header.Filename)
		return
	}

	category := strings.TrimSpace(r.FormValue("category"))
	description := strings.TrimSpace(r.FormValue("description"))
	tags := parseTags(r.FormValue("tags"))
	if len(category) > MaxCategoryLength {
		writeError(w, http.StatusBadRequest, "category too long", "")
		return
	}
	if len(description) > MaxDescriptionLength {
		writeError(w, http.StatusBadRequest, "description too long", "")
		return
	}
	if len(tags) > MaxTags {
		writeError(w, http.StatusBadRequest, "too many tags", "")
		return
	}

	saved, err := h.files.Save(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to store upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store file", "")
		return
	}

	doc, err := h.registry.Register(r.Context(), document.NewDocument{
		OwnerID:          ownerID(r),
		Filename:         saved.Filename,
		OriginalFilename: header.Filename,
		FilePath:         saved.Path,
		FileSize:         saved.Size,
		ContentType:      contentType,
		Category:         category,
		Description:      description,
		Tags:             tags,
	})
	if err != nil {
		if rmErr := h.files.Remove(saved.Path); rmErr != nil {
			h.logger.Warn("failed to clean up orphaned upload", "path", saved.Path, "error", rmErr)
		}
		h.logger.Error("failed to register document", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register document", "")
		return
	}

	h.background(doc.ID)
	writeJSON(w, http.StatusCreated, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.OriginalFilename,
		Size:       doc.FileSize,
		Status:     doc.Status,
	})
}

// UploadResponse acknowledges an accepted upload. Ingestion continues in the
// background; poll GET /api/v1/documents/{id} for the outcome.
type UploadResponse struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Filename   string          `json:"filename"`
	Size       int64           `json:"size"`
	Status     document.Status `json:"status"`
}

// parseTags splits a comma-separated tag list, dropping empties.
func parseTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// list returns the caller's documents, newest first.
// Query parameters: category, status, limit (default 20, max 100), offset.
func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := document.ListFilter{
		OwnerID:  ownerID(r),
		Category: r.URL.Query().Get("category"),
		Status:   document.Status(r.URL.Query().Get("status")),
		Limit:    parseIntParam(r, "limit", 20, 1, 100),
		Offset:   parseIntParam(r, "offset", 0, 0, 100000),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter", string(filter.Status))
		return
	}

	docs, total, err := h.registry.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents", "")
		return
	}
	if docs == nil {
		docs = []*document.Document{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// get returns one document by ID.
func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeDocumentError(w, id, err, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// UpdateDocumentRequest is the request body for metadata updates. Absent
// fields stay unchanged.
type UpdateDocumentRequest struct {
	Category    *string   `json:"category"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

// update modifies user-editable metadata. Status is not reachable from here.
func (h *DocumentHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Category != nil && len(*req.Category) > MaxCategoryLength {
		writeError(w, http.StatusBadRequest, "category too long", "")
		return
	}
	if req.Description != nil && len(*req.Description) > MaxDescriptionLength {
		writeError(w, http.StatusBadRequest, "description too long", "")
		return
	}
	if req.Tags != nil && len(*req.Tags) > MaxTags {
		writeError(w, http.StatusBadRequest, "too many tags", "")
		return
	}

	doc, err := h.registry.UpdateMetadata(r.Context(), id, document.MetadataUpdate{
		Category:    req.Category,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		h.writeDocumentError(w, id, err, "failed to update document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// delete removes a document, its chunks (FK cascade) and its file.
func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), id); err != nil {
		h.writeDocumentError(w, id, err, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reprocess purges a settled document synchronously, so conflicts surface in
// the response, then reruns the pipeline in the background. Responds 202 with
// the reset document.
func (h *DocumentHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.runner.Reset(r.Context(), id); err != nil {
		h.writeDocumentError(w, id, err, "failed to reprocess document")
		return
	}

	doc, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeDocumentError(w, id, err, "failed to reprocess document")
		return
	}

	h.background(id)
	writeJSON(w, http.StatusAccepted, doc)
}

// writeDocumentError maps registry errors onto HTTP statuses.
func (h *DocumentHandler) writeDocumentError(w http.ResponseWriter, id uuid.UUID, err error, fallback string) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found", id.String())
	case errors.Is(err, document.ErrConflict):
		writeError(w, http.StatusConflict, "document busy",
			"the document is processing or was modified concurrently")
	default:
		h.logger.Error(fallback, "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, fallback, "")
	}
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id", r.PathValue("id"))
		return uuid.Nil, false
	}
	return id, true
}
