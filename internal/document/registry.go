package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FileRemover removes a stored file by path. Implemented by filestore.Store.
// File removal failures on Delete are logged, never fatal: the database row
// is the source of truth and must go first.
type FileRemover interface {
	Remove(path string) error
}

// Registry manages document persistence with a PostgreSQL backend.
// It is safe for concurrent use by multiple goroutines.
type Registry struct {
	pool   *pgxpool.Pool
	files  FileRemover
	logger *slog.Logger
}

// NewRegistry creates a Registry. files may be nil when no underlying file
// cleanup is wanted (tests); logger nil falls back to slog.Default().
func NewRegistry(pool *pgxpool.Pool, files FileRemover, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{pool: pool, files: files, logger: logger}
}

const documentColumns = `id, owner_id, filename, original_filename, file_path, file_size,
	content_type, category, description, tags, status, error_message, total_chunks,
	created_at, updated_at, processed_at`

// scanDocument scans one documents row in documentColumns order.
func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var status string
	err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.OriginalFilename, &d.FilePath,
		&d.FileSize, &d.ContentType, &d.Category, &d.Description, &d.Tags,
		&status, &d.ErrorMessage, &d.TotalChunks,
		&d.CreatedAt, &d.UpdatedAt, &d.ProcessedAt)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	return &d, nil
}

// Register creates a document in pending state and returns it.
func (r *Registry) Register(ctx context.Context, nd NewDocument) (*Document, error) {
	if nd.Category == "" {
		nd.Category = "general"
	}
	if nd.OwnerID == "" {
		nd.OwnerID = "default"
	}
	if nd.Tags == nil {
		nd.Tags = []string{}
	}

	id := uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (id, owner_id, filename, original_filename, file_path,
			file_size, content_type, category, description, tags, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+documentColumns,
		id, nd.OwnerID, nd.Filename, nd.OriginalFilename, nd.FilePath,
		nd.FileSize, nd.ContentType, nd.Category, nd.Description, nd.Tags,
		string(StatusPending))

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	r.logger.Debug("registered document", "id", doc.ID, "filename", doc.OriginalFilename,
		"size", doc.FileSize, "category", doc.Category)
	return doc, nil
}

// Get retrieves a document by ID.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// List returns documents matching the filter, newest first, plus the total
// count matching the filter regardless of pagination.
func (r *Registry) List(ctx context.Context, f ListFilter) ([]*Document, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, 0, fmt.Errorf("invalid status filter %q", f.Status)
		}
		add("status = $%d", string(f.Status))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	return docs, total, nil
}

// UpdateMetadata updates category/description/tags and returns the fresh row.
// Status and chunk accounting are deliberately not reachable from here.
func (r *Registry) UpdateMetadata(ctx context.Context, id uuid.UUID, upd MetadataUpdate) (*Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE documents SET
			category    = COALESCE($2, category),
			description = COALESCE($3, description),
			tags        = COALESCE($4, tags),
			updated_at  = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		id, upd.Category, upd.Description, upd.Tags)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update document %s: %w", id, err)
	}

	r.logger.Debug("updated document metadata", "id", id)
	return doc, nil
}

// Delete removes the document row (chunks cascade) and then attempts to
// remove the underlying file. File removal failure is logged, not returned.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	var filePath string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM documents WHERE id = $1 RETURNING file_path`, id).Scan(&filePath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	if r.files != nil && filePath != "" {
		if rmErr := r.files.Remove(filePath); rmErr != nil {
			r.logger.Warn("failed to remove document file", "id", id,
				"path", filePath, "error", rmErr)
		}
	}

	r.logger.Debug("deleted document", "id", id)
	return nil
}

// transition performs a compare-and-set status change. extra is appended to
// the SET clause; from lists the states the document must currently be in.
func (r *Registry) transition(ctx context.Context, id uuid.UUID, to Status, from []Status, extra string, extraArgs ...any) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	set := `status = $2, updated_at = now()`
	if extra != "" {
		set += ", " + extra
	}

	args := append([]any{id, string(to), fromStrs}, extraArgs...)
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET `+set+` WHERE id = $1 AND status = ANY($3)`, args...)
	if err != nil {
		return fmt.Errorf("failed to transition document %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or another runner holds the document.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}

	r.logger.Debug("document status transition", "id", id, "to", to)
	return nil
}

// MarkProcessing claims a pending document for an ingestion run.
// Returns ErrConflict if the document is not pending.
func (r *Registry) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusProcessing, []Status{StatusPending},
		`error_message = ''`)
}

// MarkFailed settles a processing document as failed, persisting the failure
// reason so the outcome is diagnosable without log correlation.
func (r *Registry) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const maxReasonLen = 500
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return r.transition(ctx, id, StatusFailed, []Status{StatusProcessing},
		`error_message = $4, total_chunks = 0, processed_at = now()`, reason)
}

// Stats aggregates document and chunk counts. owner restricts the view when
// non-empty.
func (r *Registry) Stats(ctx context.Context, owner string) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}

	where := ""
	var args []any
	if owner != "" {
		where = " WHERE owner_id = $1"
		args = append(args, owner)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(file_size), 0), COALESCE(SUM(total_chunks), 0)
		FROM documents`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count, chunkCount int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes, &chunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan status stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.TotalDocuments += count
		stats.TotalBytes += bytes
		stats.TotalChunks += chunkCount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate by status: %w", err)
	}

	catRows, err := r.pool.Query(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(total_chunks), 0), COALESCE(SUM(file_size), 0)
		FROM documents`+where+` GROUP BY category ORDER BY category`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var cs CategoryStat
		if err := catRows.Scan(&cs.Category, &cs.Documents, &cs.Chunks, &cs.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan category stats: %w", err)
		}
		stats.ByCategory = append(stats.ByCategory, cs)
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}

	recent, _, err := r.List(ctx, ListFilter{OwnerID: owner, Limit: 5})
	if err != nil {
		return nil, err
	}
	stats.RecentUploads = recent

	return stats, nil
}
