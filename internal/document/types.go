// Package document owns knowledge-base document metadata and lifecycle status.
//
// The Registry is the single writer of the documents table. Status transitions
// are conditional updates (compare-and-set on the current status), so two
// concurrent runners racing over the same document cannot both win: the loser
// receives ErrConflict instead of silently clobbering state.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a document.
type Status string

// Document lifecycle states. A document is created pending, claimed by an
// ingestion run (processing), and settles in completed or failed. Reprocess
// moves a settled document back to pending.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates a status transition lost a race: the document
	// was not in the state the transition requires.
	ErrConflict = errors.New("document status conflict")
)

// Document is the metadata record for an uploaded file.
// TotalChunks is authoritative only when Status is StatusCompleted.
type Document struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          string     `json:"owner_id"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"original_filename"`
	FilePath         string     `json:"-"`
	FileSize         int64      `json:"file_size"`
	ContentType      string     `json:"content_type"`
	Category         string     `json:"category"`
	Description      string     `json:"description"`
	Tags             []string   `json:"tags"`
	Status           Status     `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	TotalChunks      int        `json:"total_chunks"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// NewDocument carries the fields needed to register an upload.
type NewDocument struct {
	OwnerID          string
	Filename         string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	ContentType      string
	Category         string
	Description      string
	Tags             []string
}

// MetadataUpdate holds the user-mutable metadata fields. Nil means
// "leave unchanged"; status and chunk accounting are never touched here.
type MetadataUpdate struct {
	Category    *string
	Description *string
	Tags        *[]string
}

// ListFilter restricts List results. Zero values mean "no filter".
type ListFilter struct {
	OwnerID  string
	Category string
	Status   Status
	Limit    int
	Offset   int
}

// CategoryStat aggregates documents of one category.
type CategoryStat struct {
	Category  string `json:"category"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Bytes     int64  `json:"bytes"`
}

// Stats is the aggregate view returned by Registry.Stats.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	TotalBytes     int64          `json:"total_bytes"`
	ByStatus       map[string]int `json:"by_status"`
	ByCategory     []CategoryStat `json:"by_category"`
	RecentUploads  []*Document    `json:"recent_uploads"`
}
