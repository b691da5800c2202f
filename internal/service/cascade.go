package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

// Upload is a file to store and attach to a Name.
type Upload struct {
	Filename    string
	Content     []byte
	ContentType string
	FileURL     string // generated when empty
}

// CascadeFile joins an Image row with the metadata of its document.
type CascadeFile struct {
	NameID      int64     `json:"name_id"`
	ImageID     int64     `json:"image_id"`
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	FileURL     string    `json:"file_url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeleteByNameResult reports a per-image cascade. Success is false with
// ErrorType partial_cascade_failure when any image or document failed.
type DeleteByNameResult struct {
	Success       bool     `json:"success"`
	ErrorType     string   `json:"error_type,omitempty"`
	NameID        int64    `json:"name_id"`
	ImagesFound   int      `json:"images_found"`
	DeletedFiles  int      `json:"deleted_files"`
	DeletedImages int      `json:"deleted_images"`
	SharedFiles   int      `json:"shared_files_kept"`
	Errors        []string `json:"errors"`
}

type DeleteNameResult struct {
	Success      bool     `json:"success"`
	ErrorType    string   `json:"error_type,omitempty"`
	NameID       int64    `json:"name_id"`
	NameDeleted  bool     `json:"name_deleted"`
	FilesFound   int      `json:"files_found"`
	DeletedFiles int      `json:"deleted_files"`
	SharedFiles  int      `json:"shared_files_kept"`
	Errors       []string `json:"errors"`
}

type DeleteByStatusResult struct {
	Success      bool     `json:"success"`
	ErrorType    string   `json:"error_type,omitempty"`
	Status       string   `json:"status"`
	NamesFound   int      `json:"names_found"`
	DeletedNames int      `json:"deleted_names"`
	FilesFound   int      `json:"files_found"`
	DeletedFiles int      `json:"deleted_files"`
	SharedFiles  int      `json:"shared_files_kept"`
	Errors       []string `json:"errors"`
}

// outcome derives the success flag and error type from collected errors.
func outcome(failures []string) (bool, string) {
	if len(failures) > 0 {
		return false, errs.TypePartialCascade
	}
	return true, ""
}

// CascadeService keeps Image rows and their documents in step. The two
// stores are never written atomically: a create writes the document first,
// and a failure after that leaves an orphan for CleanupService. Deletes are
// best effort per item and report what they could not remove.
type CascadeService struct {
	names   repository.Store[model.Name]
	images  repository.ImageRepository
	imageFn *EntityService[model.Image]
	docs    storage.DocumentStore
	// live reads metadata past any cache so dangling rows are seen.
	live    storage.DocumentStore
	metrics *metrics.Metrics

	baseURL string
	prefix  string
}

type CascadeConfig struct {
	BaseURL         string
	DocumentsPrefix string
}

func NewCascadeService(
	names repository.Store[model.Name],
	images repository.ImageRepository,
	docs storage.DocumentStore,
	m *metrics.Metrics,
	cfg CascadeConfig,
) *CascadeService {
	return &CascadeService{
		names:   names,
		images:  images,
		imageFn: NewEntityService[model.Image](images),
		docs:    docs,
		live:    storage.Uncached(docs),
		metrics: m,
		baseURL: cfg.BaseURL,
		prefix:  cfg.DocumentsPrefix,
	}
}

// FileURL returns the content URL served for fileID.
func (s *CascadeService) FileURL(fileID string) string {
	return storage.FileURL(s.baseURL, s.prefix, fileID)
}

// CreateFile stores upload as a document and links it to the Name through a
// new Image row. The Name is checked before anything is written.
func (s *CascadeService) CreateFile(ctx context.Context, nameID int64, upload Upload) (*CascadeFile, error) {
	_, err := s.names.ByID(ctx, nameID)
	if err != nil {
		s.metrics.CascadeOp("create", false)
		return nil, fmt.Errorf("name %d: %w", nameID, err)
	}

	fileID, err := s.docs.Create(ctx, storage.NewFile{
		Filename:    upload.Filename,
		Content:     upload.Content,
		ContentType: upload.ContentType,
	})
	if err != nil {
		s.metrics.CascadeOp("create", false)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	fileURL := upload.FileURL
	if fileURL == "" {
		fileURL = s.FileURL(fileID)
	}

	image, err := s.imageFn.GetOrCreate(ctx, map[string]any{
		"name_id":  nameID,
		"file_id":  fileID,
		"file_url": fileURL,
	})
	if err != nil {
		slog.Error("image row not created, document left orphaned",
			"name_id", nameID,
			"file_id", fileID,
			"error", err,
		)
		s.metrics.OrphanLeft()
		s.metrics.CascadeOp("create", false)
		return nil, fmt.Errorf("failed to create image for document %s: %w", fileID, err)
	}

	s.metrics.CascadeOp("create", true)
	slog.Info("cascade file created",
		"name_id", nameID,
		"image_id", image.ID,
		"file_id", fileID,
		"filename", upload.Filename,
		"size", humanize.Bytes(uint64(len(upload.Content))),
	)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	return &CascadeFile{
		NameID:      nameID,
		ImageID:     image.ID,
		FileID:      fileID,
		Filename:    upload.Filename,
		FileURL:     fileURL,
		Size:        int64(len(upload.Content)),
		ContentType: contentType,
		CreatedAt:   image.CreatedAt,
	}, nil
}

// LinkFile attaches an existing document to a Name.
func (s *CascadeService) LinkFile(ctx context.Context, fileID string, nameID int64, fileURL string) (*model.Image, error) {
	meta, err := s.live.Metadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("document %s: %w", fileID, errs.ErrNotFound)
	}

	_, err = s.names.ByID(ctx, nameID)
	if err != nil {
		return nil, fmt.Errorf("name %d: %w", nameID, err)
	}

	if fileURL == "" {
		fileURL = s.FileURL(fileID)
	}

	image, err := s.imageFn.GetOrCreate(ctx, map[string]any{
		"name_id":  nameID,
		"file_id":  fileID,
		"file_url": fileURL,
	})
	if err != nil {
		s.metrics.CascadeOp("link", false)
		return nil, err
	}

	s.metrics.CascadeOp("link", true)
	slog.Info("document linked", "file_id", fileID, "name_id", nameID, "image_id", image.ID)
	return image, nil
}

// FilesByName lists the documents attached to a Name. Images whose document
// is gone are skipped and logged.
func (s *CascadeService) FilesByName(ctx context.Context, nameID int64) ([]CascadeFile, error) {
	_, err := s.names.ByID(ctx, nameID)
	if err != nil {
		return nil, fmt.Errorf("name %d: %w", nameID, err)
	}

	images, err := s.images.ListByField(ctx, "name_id", nameID)
	if err != nil {
		return nil, err
	}

	files := make([]CascadeFile, 0, len(images))
	for _, image := range images {
		if image.FileID == nil {
			continue
		}
		meta, err := s.live.Metadata(ctx, *image.FileID)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			slog.Warn("image references a missing document", "image_id", image.ID, "file_id", *image.FileID)
			continue
		}
		files = append(files, s.cascadeFile(image, meta))
	}

	return files, nil
}

// FileByImage returns the document behind one Image. A row whose document
// is missing reports errs.ErrNotFound.
func (s *CascadeService) FileByImage(ctx context.Context, imageID int64) (*CascadeFile, error) {
	image, err := s.images.ByID(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", imageID, err)
	}
	if image.FileID == nil {
		return nil, fmt.Errorf("image %d has no document: %w", imageID, errs.ErrNotFound)
	}

	meta, err := s.live.Metadata(ctx, *image.FileID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("document %s of image %d: %w", *image.FileID, imageID, errs.ErrNotFound)
	}

	file := s.cascadeFile(image, meta)
	return &file, nil
}

func (s *CascadeService) cascadeFile(image *model.Image, meta *storage.FileMeta) CascadeFile {
	fileURL := s.FileURL(meta.ID)
	if image.FileURL != nil && *image.FileURL != "" {
		fileURL = *image.FileURL
	}
	return CascadeFile{
		NameID:      image.NameID,
		ImageID:     image.ID,
		FileID:      meta.ID,
		Filename:    meta.Filename,
		FileURL:     fileURL,
		Size:        meta.Size,
		ContentType: meta.ContentType,
		CreatedAt:   meta.CreatedAt,
	}
}

// DeleteByName removes every Image of a Name together with its document.
// The Name itself is kept. A document that cannot be deleted is logged and
// its row is still removed; the sweep picks the document up later. A
// document another Name's image also references is kept.
func (s *CascadeService) DeleteByName(ctx context.Context, nameID int64) (*DeleteByNameResult, error) {
	_, err := s.names.ByID(ctx, nameID)
	if err != nil {
		return nil, fmt.Errorf("name %d: %w", nameID, err)
	}

	images, err := s.images.ListByField(ctx, "name_id", nameID)
	if err != nil {
		return nil, err
	}

	result := &DeleteByNameResult{
		NameID:      nameID,
		ImagesFound: len(images),
		Errors:      []string{},
	}

	for _, image := range images {
		if image.FileID != nil {
			s.deleteImageDocument(ctx, image, result)
		}

		err := s.images.Delete(ctx, image)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			slog.Error("failed to delete image", "image_id", image.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("image %d: %v", image.ID, err))
			continue
		}
		if err == nil {
			result.DeletedImages++
		}
	}

	result.Success, result.ErrorType = outcome(result.Errors)
	s.metrics.CascadeOp("delete_by_name", result.Success)
	slog.Info("cascade delete by name completed",
		"name_id", nameID,
		"images_found", result.ImagesFound,
		"deleted_files", result.DeletedFiles,
		"deleted_images", result.DeletedImages,
		"shared_files", result.SharedFiles,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *CascadeService) deleteImageDocument(ctx context.Context, image *model.Image, result *DeleteByNameResult) {
	fileID := *image.FileID

	shared, err := s.images.ReferencedByOtherNames(ctx, fileID, image.NameID)
	if err != nil {
		slog.Error("failed to check document references", "file_id", fileID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", fileID, err))
		return
	}
	if shared {
		slog.Info("document kept, still referenced by another name", "file_id", fileID, "image_id", image.ID)
		result.SharedFiles++
		return
	}

	ok, err := s.docs.Delete(ctx, fileID)
	switch {
	case err != nil:
		slog.Error("failed to delete document", "file_id", fileID, "image_id", image.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", fileID, err))
	case ok:
		result.DeletedFiles++
	default:
		slog.Warn("document already missing", "file_id", fileID, "image_id", image.ID)
	}
}

// DeleteName removes the documents of a Name's images and then the Name.
// Rawdata and Image rows go with the Name through ON DELETE CASCADE. If the
// Name delete fails after its documents are gone, its images are left
// pointing at missing documents, which FileByImage reports.
func (s *CascadeService) DeleteName(ctx context.Context, nameID int64) (*DeleteNameResult, error) {
	name, err := s.names.ByID(ctx, nameID)
	if err != nil {
		return nil, fmt.Errorf("name %d: %w", nameID, err)
	}

	fileIDs, err := s.images.FileIDsByName(ctx, nameID)
	if err != nil {
		return nil, err
	}
	fileIDs = unique(fileIDs)

	result := &DeleteNameResult{
		NameID:     nameID,
		FilesFound: len(fileIDs),
		Errors:     []string{},
	}

	owned, shared, checkErrs := s.ownedBy(ctx, fileIDs, nameID)
	result.SharedFiles = shared
	result.Errors = append(result.Errors, checkErrs...)

	deleted, fileErrs := s.deleteDocuments(ctx, owned)
	result.DeletedFiles = deleted
	result.Errors = append(result.Errors, fileErrs...)

	err = s.names.Delete(ctx, name)
	if err != nil {
		slog.Error("failed to delete name", "name_id", nameID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("name %d: %v", nameID, err))
	} else {
		result.NameDeleted = true
	}

	result.Success, result.ErrorType = outcome(result.Errors)
	s.metrics.CascadeOp("delete_name", result.Success)
	slog.Info("cascade delete name completed",
		"name_id", nameID,
		"name_deleted", result.NameDeleted,
		"files_found", result.FilesFound,
		"deleted_files", result.DeletedFiles,
		"shared_files", result.SharedFiles,
		"errors", len(result.Errors),
	)
	return result, nil
}

// ownedBy splits fileIDs into those only nameID's images reference and a
// count of those shared with other Names.
func (s *CascadeService) ownedBy(ctx context.Context, fileIDs []string, nameID int64) ([]string, int, []string) {
	owned := make([]string, 0, len(fileIDs))
	shared := 0
	failures := []string{}
	for _, id := range fileIDs {
		other, err := s.images.ReferencedByOtherNames(ctx, id, nameID)
		if err != nil {
			slog.Error("failed to check document references", "file_id", id, "error", err)
			failures = append(failures, fmt.Sprintf("document %s: %v", id, err))
			continue
		}
		if other {
			shared++
			continue
		}
		owned = append(owned, id)
	}
	return owned, shared, failures
}

// DeleteByStatus deletes every Name with the given status and then the
// documents their images referenced. Documents of a Name whose row could not
// be deleted are kept, as are documents a surviving image still references.
func (s *CascadeService) DeleteByStatus(ctx context.Context, status string) (*DeleteByStatusResult, error) {
	names, err := s.names.ListByField(ctx, "status", status)
	if err != nil {
		return nil, err
	}

	result := &DeleteByStatusResult{
		Status:     status,
		NamesFound: len(names),
		Errors:     []string{},
	}

	var collected []string
	for _, name := range names {
		ids, err := s.images.FileIDsByName(ctx, name.ID)
		if err != nil {
			slog.Error("failed to collect documents", "name_id", name.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("name %d: %v", name.ID, err))
			continue
		}

		err = s.names.Delete(ctx, name)
		if err != nil {
			slog.Error("failed to delete name", "name_id", name.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("name %d: %v", name.ID, err))
			continue
		}
		result.DeletedNames++
		collected = append(collected, ids...)
	}

	fileIDs := unique(collected)
	result.FilesFound = len(fileIDs)

	orphaned := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		referenced, err := s.images.IsReferenced(ctx, id)
		if err != nil {
			slog.Error("failed to check document references", "file_id", id, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", id, err))
			continue
		}
		if referenced {
			result.SharedFiles++
			continue
		}
		orphaned = append(orphaned, id)
	}

	deleted, fileErrs := s.deleteDocuments(ctx, orphaned)
	result.DeletedFiles = deleted
	result.Errors = append(result.Errors, fileErrs...)

	result.Success, result.ErrorType = outcome(result.Errors)
	s.metrics.CascadeOp("delete_by_status", result.Success)
	slog.Info("cascade delete by status completed",
		"status", status,
		"names_found", result.NamesFound,
		"deleted_names", result.DeletedNames,
		"deleted_files", result.DeletedFiles,
		"shared_files", result.SharedFiles,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *CascadeService) deleteDocuments(ctx context.Context, fileIDs []string) (int, []string) {
	deleted := 0
	failures := []string{}
	for _, id := range fileIDs {
		ok, err := s.docs.Delete(ctx, id)
		if err != nil {
			slog.Error("failed to delete document", "file_id", id, "error", err)
			failures = append(failures, fmt.Sprintf("document %s: %v", id, err))
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, failures
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DeleteFile deletes a document that no Image references.
func (s *CascadeService) DeleteFile(ctx context.Context, fileID string) error {
	referenced, err := s.images.IsReferenced(ctx, fileID)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("document %s: %w", fileID, errs.ErrReferenced)
	}

	ok, err := s.docs.Delete(ctx, fileID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s: %w", fileID, errs.ErrNotFound)
	}

	slog.Info("document deleted", "file_id", fileID)
	return nil
}
