package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
)

// CachedStore caches document metadata in front of another DocumentStore.
// Writes through this store invalidate the cached entry. Writes that bypass
// it stay invisible until the entry expires; callers that must see them read
// through Uncached.
type CachedStore struct {
	DocumentStore
	cache   *cache.Cache
	metrics *metrics.Metrics
}

// NewCachedStore wraps next. m may be nil.
func NewCachedStore(next DocumentStore, ttl time.Duration, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		DocumentStore: next,
		cache:         cache.New(ttl, 2*ttl),
		metrics:       m,
	}
}

func (s *CachedStore) Metadata(ctx context.Context, id string) (*FileMeta, error) {
	if v, ok := s.cache.Get(id); ok {
		s.metrics.CacheLookup(true)
		meta := v.(FileMeta)
		return &meta, nil
	}
	s.metrics.CacheLookup(false)

	meta, err := s.DocumentStore.Metadata(ctx, id)
	if err != nil || meta == nil {
		return meta, err
	}

	s.cache.SetDefault(id, *meta)
	return meta, nil
}

// Update and Delete invalidate again after the write so a Metadata call
// racing the write cannot leave the old entry cached.
func (s *CachedStore) Update(ctx context.Context, id string, update FileUpdate) (bool, error) {
	s.cache.Delete(id)
	defer s.cache.Delete(id)
	return s.DocumentStore.Update(ctx, id, update)
}

func (s *CachedStore) Delete(ctx context.Context, id string) (bool, error) {
	s.cache.Delete(id)
	defer s.cache.Delete(id)
	return s.DocumentStore.Delete(ctx, id)
}

// Uncached returns the store behind any CachedStore layers of store.
func Uncached(store DocumentStore) DocumentStore {
	for {
		cached, ok := store.(*CachedStore)
		if !ok {
			return store
		}
		store = cached.DocumentStore
	}
}
