package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

// DocumentService serves the document store directly, without touching
// Image rows. Deletes go through CascadeService.DeleteFile.
type DocumentService struct {
	docs storage.DocumentStore
}

func NewDocumentService(docs storage.DocumentStore) *DocumentService {
	return &DocumentService{docs: docs}
}

// Upload stores a document and returns its metadata
// Note: size and type validation is done by the caller
func (s *DocumentService) Upload(ctx context.Context, file storage.NewFile) (*storage.FileMeta, error) {
	id, err := s.docs.Create(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	slog.Info("document stored",
		"file_id", id,
		"filename", file.Filename,
		"size", humanize.Bytes(uint64(len(file.Content))),
	)

	return s.Metadata(ctx, id)
}

func (s *DocumentService) Metadata(ctx context.Context, id string) (*storage.FileMeta, error) {
	meta, err := s.docs.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return meta, nil
}

// Content returns the document bytes along with its metadata.
func (s *DocumentService) Content(ctx context.Context, id string) ([]byte, *storage.FileMeta, error) {
	meta, err := s.Metadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.docs.Content(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if content == nil {
		return nil, nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return content, meta, nil
}

func (s *DocumentService) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.FileMeta, error) {
	if update.Empty() {
		return nil, errs.ErrNoData
	}

	ok, err := s.docs.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}

	return s.Metadata(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, page, pageSize int) (Page[storage.FileMeta], error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize

	total, err := s.docs.Count(ctx)
	if err != nil {
		return Page[storage.FileMeta]{}, err
	}
	files, err := s.docs.List(ctx, skip, pageSize)
	if err != nil {
		return Page[storage.FileMeta]{}, err
	}

	return newPage(pointers(files), int(total), page, pageSize), nil
}

// Search pages through documents whose filename contains substr, ignoring case.
func (s *DocumentService) Search(ctx context.Context, substr string, page, pageSize int) (Page[storage.FileMeta], error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * pageSize

	total, err := s.docs.CountByFilename(ctx, substr)
	if err != nil {
		return Page[storage.FileMeta]{}, err
	}
	files, err := s.docs.SearchByFilename(ctx, substr, skip, pageSize)
	if err != nil {
		return Page[storage.FileMeta]{}, err
	}

	return newPage(pointers(files), int(total), page, pageSize), nil
}

func (s *DocumentService) Ping(ctx context.Context) error {
	return s.docs.Ping(ctx)
}

func pointers[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}
