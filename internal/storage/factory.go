package storage

import (
	"context"
	"fmt"

	cfg "github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
)

// New builds the document store selected by STORAGE_DRIVER, wrapped in the
// metadata cache when METADATA_CACHE_TTL is positive.
func New(ctx context.Context, c *cfg.Config, m *metrics.Metrics) (DocumentStore, error) {
	var store DocumentStore

	switch c.StorageDriver {
	case cfg.StorageMongo:
		mongoStore, err := NewMongoStore(ctx, MongoConfig{
			URL:        c.MongoURL,
			Database:   c.MongoDatabase,
			Collection: c.MongoCollection,
		})
		if err != nil {
			return nil, err
		}
		store = mongoStore
	case cfg.StorageS3:
		s3Store, err := NewS3Store(ctx, S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
			KeyPrefix: c.S3KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	case cfg.StorageMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.MetadataCacheTTL > 0 {
		store = NewCachedStore(store, c.MetadataCacheTTL, m)
	}
	return store, nil
}
