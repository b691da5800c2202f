package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// Object metadata keys. S3 lowercases user metadata keys.
const (
	metaFilename  = "filename"
	metaCreatedAt = "created-at"
	metaUpdatedAt = "updated-at"
)

// S3Store implements DocumentStore on S3-compatible object storage
// Works with AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2, etc.
// Listing, search and count walk the key space, so they are O(n) in objects.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // Optional: for S3-compatible services
	KeyPrefix string
}

// NewS3Store creates a new S3 document store and makes sure the bucket exists
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	slog.Info("initializing S3 storage",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
	)

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	// Add static credentials if provided
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with optional custom endpoint
	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO and some S3-compatible services
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// ensureBucket checks if bucket exists, creates it if not
func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	slog.Info("created S3 bucket", "bucket", s.bucket)
	return nil
}

func (s *S3Store) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

func (s *S3Store) idFromKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

func (s *S3Store) Create(ctx context.Context, file NewFile) (string, error) {
	id := uuid.New().String()
	contentType := file.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	err := s.put(ctx, id, file.Filename, contentType, file.Content, time.Now().UTC(), nil)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *S3Store) put(ctx context.Context, id, filename, contentType string, content []byte, createdAt time.Time, updatedAt *time.Time) error {
	metadata := map[string]string{
		metaFilename:  url.QueryEscape(filename), // user metadata must be ASCII
		metaCreatedAt: createdAt.Format(time.RFC3339Nano),
	}
	if updatedAt != nil {
		metadata[metaUpdatedAt] = updatedAt.Format(time.RFC3339Nano)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *S3Store) Metadata(ctx context.Context, id string) (*FileMeta, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if isS3NotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to head S3 object: %w", err)
	}

	meta := FileMeta{
		ID:          id,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}
	meta.Filename, _ = url.QueryUnescape(out.Metadata[metaFilename])
	meta.CreatedAt = parseS3Time(out.Metadata[metaCreatedAt], aws.ToTime(out.LastModified))
	if v, ok := out.Metadata[metaUpdatedAt]; ok {
		t := parseS3Time(v, time.Time{})
		meta.UpdatedAt = &t
	}
	return &meta, nil
}

func (s *S3Store) Content(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if isS3NotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return content, nil
}

// Update rewrites the object; S3 has no partial update.
func (s *S3Store) Update(ctx context.Context, id string, update FileUpdate) (bool, error) {
	meta, err := s.Metadata(ctx, id)
	if err != nil || meta == nil {
		return false, err
	}

	content := update.Content
	if content == nil {
		content, err = s.Content(ctx, id)
		if err != nil {
			return false, err
		}
		if content == nil {
			return false, nil
		}
	}

	filename := meta.Filename
	if update.Filename != nil {
		filename = *update.Filename
	}
	contentType := meta.ContentType
	if update.ContentType != nil {
		contentType = *update.ContentType
	}

	now := time.Now().UTC()
	err = s.put(ctx, id, filename, contentType, content, meta.CreatedAt, &now)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the object. DeleteObject succeeds for missing keys, so the
// object is checked first to report whether anything was removed.
func (s *S3Store) Delete(ctx context.Context, id string) (bool, error) {
	meta, err := s.Metadata(ctx, id)
	if err != nil || meta == nil {
		return false, err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete from S3: %w", err)
	}
	return true, nil
}

func (s *S3Store) List(ctx context.Context, skip, limit int) ([]FileMeta, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	return s.metas(ctx, window(ids, skip, limit))
}

func (s *S3Store) SearchByFilename(ctx context.Context, substr string, skip, limit int) ([]FileMeta, error) {
	matches, err := s.search(ctx, substr)
	if err != nil {
		return nil, err
	}
	return page(matches, skip, limit), nil
}

func (s *S3Store) Count(ctx context.Context) (int64, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (s *S3Store) CountByFilename(ctx context.Context, substr string) (int64, error) {
	matches, err := s.search(ctx, substr)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

func (s *S3Store) Scan(ctx context.Context, fn func(FileMeta) error) error {
	ids, err := s.ids(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		meta, err := s.Metadata(ctx, id)
		if err != nil {
			return err
		}
		if meta == nil {
			continue // deleted since listing
		}
		if err := fn(*meta); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

func (s *S3Store) Close(context.Context) error {
	return nil
}

// ids lists every object id under the prefix in key order.
func (s *S3Store) ids(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			ids = append(ids, s.idFromKey(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *S3Store) metas(ctx context.Context, ids []string) ([]FileMeta, error) {
	files := make([]FileMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.Metadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			files = append(files, *meta)
		}
	}
	return files, nil
}

func (s *S3Store) search(ctx context.Context, substr string) ([]FileMeta, error) {
	needle := strings.ToLower(substr)
	var matches []FileMeta
	err := s.Scan(ctx, func(meta FileMeta) error {
		if strings.Contains(strings.ToLower(meta.Filename), needle) {
			matches = append(matches, meta)
		}
		return nil
	})
	return matches, err
}

func window(ids []string, skip, limit int) []string {
	if skip >= len(ids) {
		return nil
	}
	ids = ids[skip:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

func parseS3Time(v string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fallback
	}
	return t
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
