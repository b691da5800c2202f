package storage

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// FileMeta describes a stored document without its content.
type FileMeta struct {
	ID          string     `json:"file_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// NewFile is the input for creating a document.
type NewFile struct {
	Filename    string
	Content     []byte
	ContentType string
}

// FileUpdate carries the fields to change; nil fields are left untouched.
type FileUpdate struct {
	Filename    *string
	Content     []byte
	ContentType *string
}

func (u FileUpdate) Empty() bool {
	return u.Filename == nil && u.Content == nil && u.ContentType == nil
}

// DocumentStore stores opaque binary blobs with metadata.
// Lookups of a missing or malformed id return nil/false with a nil error.
type DocumentStore interface {
	Create(ctx context.Context, file NewFile) (string, error)
	Metadata(ctx context.Context, id string) (*FileMeta, error)
	Content(ctx context.Context, id string) ([]byte, error)
	Update(ctx context.Context, id string, update FileUpdate) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, skip, limit int) ([]FileMeta, error)
	SearchByFilename(ctx context.Context, substr string, skip, limit int) ([]FileMeta, error)
	Count(ctx context.Context) (int64, error)
	CountByFilename(ctx context.Context, substr string) (int64, error)
	// Scan calls fn for every stored document, stopping at the first error.
	Scan(ctx context.Context, fn func(FileMeta) error) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

const DefaultContentType = "application/octet-stream"

// FileURL builds the content URL for a document:
// <baseURL>/<prefix>/<escaped id>/content
func FileURL(baseURL, prefix, fileID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + prefix + "/" + url.PathEscape(fileID) + "/content"
}
