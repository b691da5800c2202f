package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. It backs local runs with
// STORAGE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*memoryFile
	seq   int64
}

type memoryFile struct {
	meta    FileMeta
	content []byte
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*memoryFile)}
}

func (s *MemoryStore) Create(_ context.Context, file NewFile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contentType := file.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	s.seq++
	id := uuid.New().String()
	s.files[id] = &memoryFile{
		meta: FileMeta{
			ID:          id,
			Filename:    file.Filename,
			ContentType: contentType,
			Size:        int64(len(file.Content)),
			CreatedAt:   time.Now().UTC(),
		},
		content: append([]byte(nil), file.Content...),
		seq:     s.seq,
	}
	return id, nil
}

func (s *MemoryStore) Metadata(_ context.Context, id string) (*FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, nil
	}
	meta := f.meta
	return &meta, nil
}

func (s *MemoryStore) Content(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, f.content...), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, update FileUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return false, nil
	}

	if update.Filename != nil {
		f.meta.Filename = *update.Filename
	}
	if update.Content != nil {
		f.content = append([]byte(nil), update.Content...)
		f.meta.Size = int64(len(update.Content))
	}
	if update.ContentType != nil {
		f.meta.ContentType = *update.ContentType
	}
	now := time.Now().UTC()
	f.meta.UpdatedAt = &now
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return false, nil
	}
	delete(s.files, id)
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, skip, limit int) ([]FileMeta, error) {
	return page(s.matching(""), skip, limit), nil
}

func (s *MemoryStore) SearchByFilename(_ context.Context, substr string, skip, limit int) ([]FileMeta, error) {
	return page(s.matching(substr), skip, limit), nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.files)), nil
}

func (s *MemoryStore) CountByFilename(_ context.Context, substr string) (int64, error) {
	return int64(len(s.matching(substr))), nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(FileMeta) error) error {
	for _, meta := range s.matching("") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

// SetCreatedAt backdates a document. Used to exercise age-based sweeps.
func (s *MemoryStore) SetCreatedAt(id string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return false
	}
	f.meta.CreatedAt = t
	return true
}

// matching returns metadata in insertion order, filtered by a
// case-insensitive filename substring.
func (s *MemoryStore) matching(substr string) []FileMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(substr)
	files := make([]*memoryFile, 0, len(s.files))
	for _, f := range s.files {
		if needle == "" || strings.Contains(strings.ToLower(f.meta.Filename), needle) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	metas := make([]FileMeta, len(files))
	for i, f := range files {
		metas[i] = f.meta
	}
	return metas
}

func page(items []FileMeta, skip, limit int) []FileMeta {
	if skip >= len(items) {
		return []FileMeta{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
