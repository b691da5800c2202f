package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
)

// MongoStore implements DocumentStore on a single MongoDB collection.
// Content is stored inline in the document.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection

	indexMu    sync.Mutex
	indexReady bool
}

// MongoConfig holds configuration for the MongoDB document store
type MongoConfig struct {
	URL        string
	Database   string
	Collection string
}

type fileDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Filename    string             `bson:"filename"`
	Content     []byte             `bson:"content,omitempty"`
	ContentType string             `bson:"content_type"`
	Size        int64              `bson:"size"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   *time.Time         `bson:"updated_at,omitempty"`
}

func (d fileDocument) meta() FileMeta {
	return FileMeta{
		ID:          d.ID.Hex(),
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        d.Size,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// requiredIndexes are created on first use; existing names are skipped.
var requiredIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "filename", Value: 1}},
		Options: options.Index().SetName("filename_1"),
	},
	{
		Keys:    bson.D{{Key: "content_type", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("content_type_1_created_at_-1"),
	},
	{
		Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("created_at_-1__id_1"),
	},
}

var metaProjection = bson.M{"content": 0}

// NewMongoStore connects to MongoDB and verifies the connection.
// The returned store owns the client; call Close on shutdown.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	slog.Info("initializing mongo storage",
		"database", cfg.Database,
		"collection", cfg.Collection,
	)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	err = client.Ping(connectCtx, nil)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// ensureIndexes creates any missing index from requiredIndexes. A failure is
// logged and retried on the next call.
func (s *MongoStore) ensureIndexes(ctx context.Context) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if s.indexReady {
		return
	}

	existing, err := s.indexNames(ctx)
	if err != nil {
		slog.Warn("failed to list mongo indexes", "error", err)
		return
	}

	for _, idx := range requiredIndexes {
		name := *idx.Options.Name
		if _, ok := existing[name]; ok {
			continue
		}
		_, err := s.collection.Indexes().CreateOne(ctx, idx)
		if err != nil {
			slog.Warn("failed to create mongo index", "index", name, "error", err)
			return
		}
		slog.Info("created mongo index", "index", name)
	}

	s.indexReady = true
}

func (s *MongoStore) indexNames(ctx context.Context) (map[string]struct{}, error) {
	cursor, err := s.collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	names := make(map[string]struct{})
	for cursor.Next(ctx) {
		var spec struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&spec); err != nil {
			return nil, err
		}
		names[spec.Name] = struct{}{}
	}
	return names, cursor.Err()
}

// IndexNames returns the names of the indexes currently on the collection.
func (s *MongoStore) IndexNames(ctx context.Context) ([]string, error) {
	set, err := s.indexNames(ctx)
	if err != nil {
		return nil, wrapMongo(err)
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names, nil
}

func (s *MongoStore) Create(ctx context.Context, file NewFile) (string, error) {
	s.ensureIndexes(ctx)

	contentType := file.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	doc := fileDocument{
		Filename:    file.Filename,
		Content:     file.Content,
		ContentType: contentType,
		Size:        int64(len(file.Content)),
		CreatedAt:   time.Now().UTC(),
	}

	result, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", wrapMongo(err))
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) Metadata(ctx context.Context, id string) (*FileMeta, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return nil, nil
	}

	var doc fileDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(metaProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongo(err)
	}

	meta := doc.meta()
	return &meta, nil
}

func (s *MongoStore) Content(ctx context.Context, id string) ([]byte, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return nil, nil
	}

	var doc struct {
		Content []byte `bson:"content"`
	}
	err := s.collection.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(bson.M{"content": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapMongo(err)
	}

	if doc.Content == nil {
		return []byte{}, nil
	}
	return doc.Content, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, update FileUpdate) (bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, nil
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Filename != nil {
		set["filename"] = *update.Filename
	}
	if update.Content != nil {
		set["content"] = update.Content
		set["size"] = int64(len(update.Content))
	}
	if update.ContentType != nil {
		set["content_type"] = *update.ContentType
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return false, wrapMongo(err)
	}
	return result.MatchedCount > 0, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) (bool, error) {
	oid, ok := parseObjectID(id)
	if !ok {
		return false, nil
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, wrapMongo(err)
	}
	return result.DeletedCount > 0, nil
}

func (s *MongoStore) List(ctx context.Context, skip, limit int) ([]FileMeta, error) {
	return s.find(ctx, bson.M{}, skip, limit)
}

func (s *MongoStore) SearchByFilename(ctx context.Context, substr string, skip, limit int) ([]FileMeta, error) {
	return s.find(ctx, filenameFilter(substr), skip, limit)
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, wrapMongo(err)
	}
	return n, nil
}

func (s *MongoStore) CountByFilename(ctx context.Context, substr string) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, filenameFilter(substr))
	if err != nil {
		return 0, wrapMongo(err)
	}
	return n, nil
}

func (s *MongoStore) Scan(ctx context.Context, fn func(FileMeta) error) error {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetProjection(metaProjection).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return wrapMongo(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	for cursor.Next(ctx) {
		var doc fileDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		if err := fn(doc.meta()); err != nil {
			return err
		}
	}
	return wrapMongo(cursor.Err())
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return wrapMongo(s.client.Ping(ctx, nil))
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, skip, limit int) ([]FileMeta, error) {
	s.ensureIndexes(ctx)

	opts := options.Find().
		SetProjection(metaProjection).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapMongo(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	files := []FileMeta{}
	for cursor.Next(ctx) {
		var doc fileDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		files = append(files, doc.meta())
	}
	return files, wrapMongo(cursor.Err())
}

// filenameFilter matches filename as a case-insensitive literal substring.
func filenameFilter(substr string) bson.M {
	return bson.M{"filename": primitive.Regex{Pattern: regexp.QuoteMeta(substr), Options: "i"}}
}

func parseObjectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

func wrapMongo(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return &errs.Unavailable{Store: "mongo", Err: err}
	}
	return err
}
