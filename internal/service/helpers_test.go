package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/dbtest"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

var errBoom = errors.New("boom")

const baseURL = "http://api.test"

// flakyDocs wraps a MemoryStore and fails chosen operations.
type flakyDocs struct {
	*storage.MemoryStore
	failCreate bool
	failDelete map[string]bool
}

func newFlakyDocs() *flakyDocs {
	return &flakyDocs{MemoryStore: storage.NewMemoryStore(), failDelete: map[string]bool{}}
}

func (d *flakyDocs) Create(ctx context.Context, file storage.NewFile) (string, error) {
	if d.failCreate {
		return "", errBoom
	}
	return d.MemoryStore.Create(ctx, file)
}

func (d *flakyDocs) Delete(ctx context.Context, id string) (bool, error) {
	if d.failDelete[id] {
		return false, errBoom
	}
	return d.MemoryStore.Delete(ctx, id)
}

// brokenImages refuses to create image rows.
type brokenImages struct {
	repository.ImageRepository
}

func (brokenImages) Create(context.Context, map[string]any) (*model.Image, error) {
	return nil, errBoom
}

// flakyNames fails Delete for chosen Name ids.
type flakyNames struct {
	repository.Store[model.Name]
	failDelete map[int64]bool
}

func (n *flakyNames) Delete(ctx context.Context, name *model.Name) error {
	if n.failDelete[name.ID] {
		return errBoom
	}
	return n.Store.Delete(ctx, name)
}

type fixture struct {
	db      *sqlx.DB
	codes   repository.Store[model.Code]
	names   *flakyNames
	images  repository.ImageRepository
	docs    *flakyDocs
	metrics *metrics.Metrics
	cascade *service.CascadeService
	cleanup *service.CleanupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := dbtest.SQLite(t)
	m, err := metrics.New()
	require.NoError(t, err)

	f := &fixture{
		db:      database,
		codes:   repository.NewStore[model.Code](database),
		names:   &flakyNames{Store: repository.NewStore[model.Name](database), failDelete: map[int64]bool{}},
		images:  repository.NewImageRepository(database),
		docs:    newFlakyDocs(),
		metrics: m,
	}
	f.cascade = service.NewCascadeService(f.names, f.images, f.docs, m, service.CascadeConfig{
		BaseURL:         baseURL,
		DocumentsPrefix: "documents",
	})
	f.cleanup = service.NewCleanupService(f.images, f.docs, m)
	return f
}

func (f *fixture) name(t *testing.T, name, status string) *model.Name {
	t.Helper()
	ctx := context.Background()

	code, err := service.NewEntityService(f.codes).GetOrCreate(ctx, map[string]any{
		"code": "code-" + name,
		"url":  "https://example.com/codes/" + name,
	})
	require.NoError(t, err)

	n, err := f.names.Create(ctx, map[string]any{
		"code_id": code.ID,
		"name":    name,
		"url":     "https://example.com/names/" + name,
		"status":  status,
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) upload(t *testing.T, nameID int64, filename string) *service.CascadeFile {
	t.Helper()
	file, err := f.cascade.CreateFile(context.Background(), nameID, service.Upload{
		Filename:    filename,
		Content:     []byte("content of " + filename),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	return file
}
