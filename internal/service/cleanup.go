package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

type SweepResult struct {
	Success            bool     `json:"success"`
	DeletedCount       int      `json:"deleted_orphaned_files"`
	TotalOrphanedFound int      `json:"total_orphaned_found"`
	Errors             []string `json:"deletion_errors"`
	Error              string   `json:"error,omitempty"`
}

type AgeSweepResult struct {
	Success      bool      `json:"success"`
	DeletedCount int       `json:"deleted_old_files"`
	TotalFound   int       `json:"total_old_found"`
	Cutoff       time.Time `json:"cutoff_date"`
	Errors       []string  `json:"deletion_errors"`
	Error        string    `json:"error,omitempty"`
}

// CleanupService removes documents from the document store. Image rows are
// never touched, so a row pointing at a deleted document stays visible.
type CleanupService struct {
	images  repository.ImageRepository
	docs    storage.DocumentStore
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCleanupService(images repository.ImageRepository, docs storage.DocumentStore, m *metrics.Metrics) *CleanupService {
	return &CleanupService{
		images:  images,
		docs:    docs,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CleanupOrphanedFiles deletes documents that no Image references. With
// olderThanDays <= 0 every orphan is deleted; otherwise only orphans created
// before the cutoff, which leaves documents of in-flight creates alone.
func (s *CleanupService) CleanupOrphanedFiles(ctx context.Context, olderThanDays int) SweepResult {
	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = s.now().AddDate(0, 0, -olderThanDays)
	}

	referenced, err := s.images.ReferencedFileIDs(ctx)
	if err != nil {
		slog.Error("orphan sweep failed to load referenced documents", "error", err)
		return SweepResult{Success: false, Errors: []string{}, Error: err.Error()}
	}

	var orphans []storage.FileMeta
	err = s.docs.Scan(ctx, func(meta storage.FileMeta) error {
		if _, ok := referenced[meta.ID]; ok {
			return nil
		}
		if !cutoff.IsZero() && !meta.CreatedAt.Before(cutoff) {
			return nil
		}
		orphans = append(orphans, meta)
		return nil
	})
	if err != nil {
		slog.Error("orphan sweep failed to scan documents", "error", err)
		return SweepResult{Success: false, Errors: []string{}, Error: err.Error()}
	}

	result := SweepResult{
		Success:            true,
		TotalOrphanedFound: len(orphans),
		Errors:             []string{},
	}

	var freed uint64
	for _, meta := range orphans {
		ok, err := s.docs.Delete(ctx, meta.ID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("error deleting %s: %v", meta.ID, err))
		case !ok:
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s", meta.ID))
		default:
			result.DeletedCount++
			freed += uint64(meta.Size)
			slog.Debug("deleted orphaned document", "file_id", meta.ID, "filename", meta.Filename)
		}
	}

	s.metrics.Swept("orphans", result.DeletedCount, len(result.Errors))
	slog.Info("orphan sweep completed",
		"referenced", len(referenced),
		"orphans_found", result.TotalOrphanedFound,
		"deleted", result.DeletedCount,
		"errors", len(result.Errors),
		"freed", humanize.Bytes(freed),
	)
	return result
}

// CleanupOldFilesOnly deletes every document created before the cutoff,
// referenced or not.
func (s *CleanupService) CleanupOldFilesOnly(ctx context.Context, olderThanDays int) AgeSweepResult {
	cutoff := s.now().AddDate(0, 0, -olderThanDays)

	var old []storage.FileMeta
	err := s.docs.Scan(ctx, func(meta storage.FileMeta) error {
		if meta.CreatedAt.Before(cutoff) {
			old = append(old, meta)
		}
		return nil
	})
	if err != nil {
		slog.Error("age sweep failed to scan documents", "error", err)
		return AgeSweepResult{Success: false, Cutoff: cutoff, Errors: []string{}, Error: err.Error()}
	}

	result := AgeSweepResult{
		Success:    true,
		TotalFound: len(old),
		Cutoff:     cutoff,
		Errors:     []string{},
	}

	for _, meta := range old {
		ok, err := s.docs.Delete(ctx, meta.ID)
		if err != nil {
			slog.Warn("failed to delete old document", "file_id", meta.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("error deleting %s: %v", meta.ID, err))
			continue
		}
		if ok {
			result.DeletedCount++
		}
	}

	s.metrics.Swept("old", result.DeletedCount, len(result.Errors))
	slog.Info("age sweep completed",
		"cutoff", cutoff,
		"found", result.TotalFound,
		"deleted", result.DeletedCount,
	)
	return result
}
