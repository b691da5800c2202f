package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

func TestCreateFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)

	file := f.upload(t, name.ID, "a.txt")
	assert.Equal(t, name.ID, file.NameID)
	assert.NotZero(t, file.ImageID)
	assert.Equal(t, storage.FileURL(baseURL, "documents", file.FileID), file.FileURL)
	assert.Equal(t, int64(len("content of a.txt")), file.Size)

	image, err := f.images.ByID(ctx, file.ImageID)
	require.NoError(t, err)
	require.NotNil(t, image.FileID)
	assert.Equal(t, file.FileID, *image.FileID)

	meta, err := f.docs.Metadata(ctx, file.FileID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "a.txt", meta.Filename)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CascadeOps.WithLabelValues("create", "success")))
}

func TestCreateFileKeepsSuppliedURL(t *testing.T) {
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)

	file, err := f.cascade.CreateFile(context.Background(), name.ID, service.Upload{
		Filename: "a.bin",
		Content:  []byte{1, 2, 3},
		FileURL:  "https://cdn.example.com/a.bin",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.bin", file.FileURL)
	assert.Equal(t, storage.DefaultContentType, file.ContentType)
}

func TestCreateFileUnknownNameWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cascade.CreateFile(ctx, 999, service.Upload{Filename: "a.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	n, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateFileBlobFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	f.docs.failCreate = true

	_, err := f.cascade.CreateFile(ctx, name.ID, service.Upload{Filename: "a.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, errBoom)

	images, err := f.images.ListByField(ctx, "name_id", name.ID)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestCreateFileRowFailureLeavesOrphan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)

	cascade := service.NewCascadeService(f.names, brokenImages{f.images}, f.docs, f.metrics, service.CascadeConfig{
		BaseURL:         baseURL,
		DocumentsPrefix: "documents",
	})
	_, err := cascade.CreateFile(ctx, name.ID, service.Upload{Filename: "a.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, errBoom)

	n, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrphansLeft))

	result := f.cleanup.CleanupOrphanedFiles(ctx, 0)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.DeletedCount)
}

func TestLinkFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)

	id, err := f.docs.Create(ctx, storage.NewFile{Filename: "a.txt", Content: []byte("x")})
	require.NoError(t, err)

	image, err := f.cascade.LinkFile(ctx, id, name.ID, "")
	require.NoError(t, err)
	require.NotNil(t, image.FileURL)
	assert.Equal(t, storage.FileURL(baseURL, "documents", id), *image.FileURL)

	again, err := f.cascade.LinkFile(ctx, id, name.ID, "")
	require.NoError(t, err)
	assert.Equal(t, image.ID, again.ID)

	_, err = f.cascade.LinkFile(ctx, "missing", name.ID, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.cascade.LinkFile(ctx, id, 999, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteByName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	a := f.upload(t, name.ID, "a.txt")
	b := f.upload(t, name.ID, "b.txt")

	result, err := f.cascade.DeleteByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImagesFound)
	assert.Equal(t, 2, result.DeletedFiles)
	assert.Equal(t, 2, result.DeletedImages)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorType)

	for _, file := range []*service.CascadeFile{a, b} {
		content, err := f.docs.Content(ctx, file.FileID)
		require.NoError(t, err)
		assert.Nil(t, content)
	}

	files, err := f.cascade.FilesByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = f.names.ByID(ctx, name.ID)
	assert.NoError(t, err, "the name itself is kept")
}

func TestDeleteByNameContinuesPastBlobFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	a := f.upload(t, name.ID, "a.txt")
	f.upload(t, name.ID, "b.txt")
	f.docs.failDelete[a.FileID] = true

	result, err := f.cascade.DeleteByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedFiles)
	assert.Equal(t, 2, result.DeletedImages)
	assert.Len(t, result.Errors, 1)
	assert.False(t, result.Success)
	assert.Equal(t, errs.TypePartialCascade, result.ErrorType)

	// The surviving document is now an orphan.
	delete(f.docs.failDelete, a.FileID)
	sweep := f.cleanup.CleanupOrphanedFiles(ctx, 0)
	assert.Equal(t, 1, sweep.DeletedCount)
}

func TestDeleteByNameEdgeCases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cascade.DeleteByName(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	name := f.name(t, "empty", model.StatusPending)
	result, err := f.cascade.DeleteByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Zero(t, result.ImagesFound)
	assert.Zero(t, result.DeletedFiles)
}

func TestDeleteName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	file := f.upload(t, name.ID, "a.txt")

	result, err := f.cascade.DeleteName(ctx, name.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesFound)
	assert.Equal(t, 1, result.DeletedFiles)
	assert.True(t, result.NameDeleted)
	assert.True(t, result.Success)

	_, err = f.names.ByID(ctx, name.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.images.ByID(ctx, file.ImageID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	done1 := f.name(t, "d1", model.StatusDone)
	done2 := f.name(t, "d2", model.StatusDone)
	keep := f.name(t, "k1", model.StatusPending)

	shared := f.upload(t, done1.ID, "shared.txt")
	_, err := f.cascade.LinkFile(ctx, shared.FileID, done2.ID, "")
	require.NoError(t, err)
	f.upload(t, done2.ID, "d2.txt")
	kept := f.upload(t, keep.ID, "k.txt")

	result, err := f.cascade.DeleteByStatus(ctx, model.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NamesFound)
	assert.Equal(t, 2, result.DeletedNames)
	assert.Equal(t, 2, result.FilesFound, "shared document counted once")
	assert.Equal(t, 2, result.DeletedFiles)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Success)

	meta, err := f.docs.Metadata(ctx, kept.FileID)
	require.NoError(t, err)
	assert.NotNil(t, meta)

	n, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteNameRemovesDocumentsBeforeRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	file := f.upload(t, name.ID, "a.txt")
	f.names.failDelete[name.ID] = true

	result, err := f.cascade.DeleteName(ctx, name.ID)
	require.NoError(t, err)
	assert.False(t, result.NameDeleted)
	assert.Equal(t, 1, result.FilesFound)
	assert.Equal(t, 1, result.DeletedFiles)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")
	assert.False(t, result.Success)
	assert.Equal(t, errs.TypePartialCascade, result.ErrorType)

	meta, err := f.docs.Metadata(ctx, file.FileID)
	require.NoError(t, err)
	assert.Nil(t, meta, "document deleted before the row")

	_, err = f.names.ByID(ctx, name.ID)
	require.NoError(t, err)
	_, err = f.cascade.FileByImage(ctx, file.ImageID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CascadeOps.WithLabelValues("delete_name", "failure")))
}

func TestDeleteNameContinuesPastBlobFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	a := f.upload(t, name.ID, "a.txt")
	b := f.upload(t, name.ID, "b.txt")
	f.docs.failDelete[a.FileID] = true

	result, err := f.cascade.DeleteName(ctx, name.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesFound)
	assert.Equal(t, 1, result.DeletedFiles)
	assert.True(t, result.NameDeleted)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], a.FileID)
	assert.Equal(t, errs.TypePartialCascade, result.ErrorType)

	meta, err := f.docs.Metadata(ctx, b.FileID)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = f.names.ByID(ctx, name.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	delete(f.docs.failDelete, a.FileID)
	sweep := f.cleanup.CleanupOrphanedFiles(ctx, 0)
	assert.Equal(t, 1, sweep.DeletedCount)
}

func TestDeleteByStatusContinuesPastBlobFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d1 := f.name(t, "d1", model.StatusDone)
	d2 := f.name(t, "d2", model.StatusDone)
	a := f.upload(t, d1.ID, "a.txt")
	f.upload(t, d2.ID, "b.txt")
	f.docs.failDelete[a.FileID] = true

	result, err := f.cascade.DeleteByStatus(ctx, model.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedNames)
	assert.Equal(t, 2, result.FilesFound)
	assert.Equal(t, 1, result.DeletedFiles)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], a.FileID)
	assert.False(t, result.Success)
	assert.Equal(t, errs.TypePartialCascade, result.ErrorType)

	n, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteByStatusKeepsDocumentsOfUndeletedName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d1 := f.name(t, "d1", model.StatusDone)
	d2 := f.name(t, "d2", model.StatusDone)
	kept := f.upload(t, d1.ID, "a.txt")
	gone := f.upload(t, d2.ID, "b.txt")
	f.names.failDelete[d1.ID] = true

	result, err := f.cascade.DeleteByStatus(ctx, model.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NamesFound)
	assert.Equal(t, 1, result.DeletedNames)
	assert.Equal(t, 1, result.FilesFound)
	assert.Equal(t, 1, result.DeletedFiles)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, errs.TypePartialCascade, result.ErrorType)

	meta, err := f.docs.Metadata(ctx, kept.FileID)
	require.NoError(t, err)
	assert.NotNil(t, meta)
	_, err = f.names.ByID(ctx, d1.ID)
	assert.NoError(t, err)

	meta, err = f.docs.Metadata(ctx, gone.FileID)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestDeletesKeepDocumentsSharedWithOtherNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.name(t, "owner", model.StatusDone)
	other := f.name(t, "other", model.StatusPending)
	shared := f.upload(t, owner.ID, "shared.txt")
	own := f.upload(t, owner.ID, "own.txt")
	_, err := f.cascade.LinkFile(ctx, shared.FileID, other.ID, "")
	require.NoError(t, err)

	assertShared := func() {
		t.Helper()
		files, err := f.cascade.FilesByName(ctx, other.ID)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, shared.FileID, files[0].FileID)
	}

	byName, err := f.cascade.DeleteByName(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, byName.DeletedFiles)
	assert.Equal(t, 1, byName.SharedFiles)
	assert.True(t, byName.Success)
	assertShared()

	_, err = f.cascade.LinkFile(ctx, shared.FileID, owner.ID, "")
	require.NoError(t, err)
	deleted, err := f.cascade.DeleteName(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, deleted.DeletedFiles)
	assert.Equal(t, 1, deleted.SharedFiles)
	assert.True(t, deleted.NameDeleted)
	assertShared()

	owner = f.name(t, "owner2", model.StatusDone)
	_, err = f.cascade.LinkFile(ctx, shared.FileID, owner.ID, "")
	require.NoError(t, err)
	byStatus, err := f.cascade.DeleteByStatus(ctx, model.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 1, byStatus.DeletedNames)
	assert.Zero(t, byStatus.DeletedFiles)
	assert.Equal(t, 1, byStatus.SharedFiles)
	assertShared()

	meta, err := f.docs.Metadata(ctx, own.FileID)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestCachedMetadataDoesNotHideDanglingImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	docs := storage.NewCachedStore(f.docs, time.Hour, f.metrics)
	cascade := service.NewCascadeService(f.names, f.images, docs, f.metrics, service.CascadeConfig{
		BaseURL:         baseURL,
		DocumentsPrefix: "documents",
	})
	name := f.name(t, "n1", model.StatusPending)

	id, err := docs.Create(ctx, storage.NewFile{Filename: "a.txt", Content: []byte("x")})
	require.NoError(t, err)
	image, err := cascade.LinkFile(ctx, id, name.ID, "")
	require.NoError(t, err)

	_, err = cascade.FileByImage(ctx, image.ID)
	require.NoError(t, err)
	meta, err := docs.Metadata(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, meta, "metadata now cached")

	_, err = f.docs.MemoryStore.Delete(ctx, id)
	require.NoError(t, err)
	meta, err = docs.Metadata(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, meta, "stale entry still served by the cache")

	_, err = cascade.FileByImage(ctx, image.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	files, err := cascade.FilesByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = cascade.LinkFile(ctx, id, name.ID, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteFileReferenceGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	file := f.upload(t, name.ID, "a.txt")

	err := f.cascade.DeleteFile(ctx, file.FileID)
	assert.ErrorIs(t, err, errs.ErrReferenced)

	id, err := f.docs.Create(ctx, storage.NewFile{Filename: "free.txt", Content: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, f.cascade.DeleteFile(ctx, id))

	err = f.cascade.DeleteFile(ctx, id)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOutOfBandDeleteStaysDetectable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	file := f.upload(t, name.ID, "a.txt")

	_, err := f.docs.MemoryStore.Delete(ctx, file.FileID)
	require.NoError(t, err)

	result := f.cleanup.CleanupOrphanedFiles(ctx, 0)
	assert.True(t, result.Success)
	assert.Zero(t, result.TotalOrphanedFound)

	image, err := f.images.ByID(ctx, file.ImageID)
	require.NoError(t, err, "the sweep never touches rows")

	_, err = f.cascade.FileByImage(ctx, image.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	files, err := f.cascade.FilesByName(ctx, name.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileByImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := f.name(t, "n1", model.StatusPending)
	file := f.upload(t, name.ID, "a.txt")

	got, err := f.cascade.FileByImage(ctx, file.ImageID)
	require.NoError(t, err)
	assert.Equal(t, file.FileID, got.FileID)
	assert.Equal(t, "a.txt", got.Filename)
	assert.Equal(t, "text/plain", got.ContentType)

	_, err = f.cascade.FileByImage(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
