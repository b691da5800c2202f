package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
)

type ImageRepository interface {
	Store[model.Image]
	// ReferencedFileIDs returns every non-null file_id currently stored.
	ReferencedFileIDs(ctx context.Context) (map[string]struct{}, error)
	// FileIDsByName returns the non-null file ids of one Name's images.
	FileIDsByName(ctx context.Context, nameID int64) ([]string, error)
	// IsReferenced reports whether any image points at fileID.
	IsReferenced(ctx context.Context, fileID string) (bool, error)
	// ReferencedByOtherNames reports whether an image of a Name other than
	// nameID points at fileID.
	ReferencedByOtherNames(ctx context.Context, fileID string, nameID int64) (bool, error)
}

type imageRepository struct {
	*entityRepository[model.Image]
}

func NewImageRepository(db *sqlx.DB) ImageRepository {
	return &imageRepository{entityRepository: newEntityRepository[model.Image](db)}
}

func (r *imageRepository) ReferencedFileIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	query := `SELECT DISTINCT file_id FROM images WHERE file_id IS NOT NULL`

	err := r.db.SelectContext(ctx, &ids, query)
	if err != nil {
		return nil, classify(err, r.schema)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (r *imageRepository) FileIDsByName(ctx context.Context, nameID int64) ([]string, error) {
	var ids []string
	query := `SELECT file_id FROM images WHERE name_id = $1 AND file_id IS NOT NULL ORDER BY id`

	err := r.db.SelectContext(ctx, &ids, query, nameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file ids for name %d: %w", nameID, classify(err, r.schema))
	}

	return ids, nil
}

func (r *imageRepository) IsReferenced(ctx context.Context, fileID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM images WHERE file_id = $1`
	err := r.db.QueryRowxContext(ctx, query, fileID).Scan(&count)
	if err != nil {
		return false, classify(err, r.schema)
	}
	return count > 0, nil
}

func (r *imageRepository) ReferencedByOtherNames(ctx context.Context, fileID string, nameID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM images WHERE file_id = $1 AND name_id <> $2`
	err := r.db.QueryRowxContext(ctx, query, fileID, nameID).Scan(&count)
	if err != nil {
		return false, classify(err, r.schema)
	}
	return count > 0, nil
}
