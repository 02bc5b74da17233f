package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
)

// indexedFields names the collections that keep a sorted-set ordering index
// alongside their documents, keyed by the field the index orders on.
var indexedFields = map[string]string{
	LeaderboardPath: "completionTime",
}

// RedisStore is the Redis-backed document store. Documents live as JSON
// strings under doc:{path}; indexed collections additionally maintain a
// ZSET scoring documents by their order-by field.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig, timeout time.Duration, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func docKey(path string) string {
	return "doc:" + path
}

func indexKey(collection, field string) string {
	return "idx:" + collection + ":" + field
}

// collectionOf returns the collection segment of a document path, i.e.
// everything before the final "/".
func collectionOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

// bound derives the per-operation deadline context.
func (s *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// fail classifies an operation error. Deadline expiry means the backend is
// unreachable rather than the operation being invalid.
func (s *RedisStore) fail(op string, err error, kind error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, domain.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", op, kind, err)
}

// Get returns the document at path.
func (s *RedisStore) Get(ctx context.Context, path string) (Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, docKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("getting %s: %w", path, domain.ErrNotFound)
		}
		return nil, s.fail("getting "+path, err, domain.ErrReadFailed)
	}
	return Document(data), nil
}

// Set overwrites the document at path and refreshes the collection's
// ordering index in the same pipeline.
func (s *RedisStore) Set(ctx context.Context, path string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Set(ctx, docKey(path), data, 0)
	collection := collectionOf(path)
	if field, ok := indexedFields[collection]; ok {
		pipe.ZAdd(ctx, indexKey(collection, field), redis.Z{
			Score:  orderField(data, field),
			Member: path,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail("setting "+path, err, domain.ErrWriteFailed)
	}
	return nil
}

// Update merges fields into the document at path. An absent document is
// created from the field map alone.
func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	current := make(map[string]any)
	doc, err := s.Get(ctx, path)
	switch {
	case err == nil:
		if err := json.Unmarshal(doc, &current); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
	case errors.Is(err, domain.ErrNotFound):
		// merge into an empty document
	default:
		return err
	}

	for k, v := range fields {
		current[k] = v
	}
	return s.Set(ctx, path, current)
}

// Push generates a unique child key under path. Keys embed a millisecond
// timestamp so lexicographic order follows creation order.
func (s *RedisStore) Push(ctx context.Context, path string) (string, error) {
	key := fmt.Sprintf("%012x-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	return key, nil
}

// Remove deletes the document at path and its index entry.
func (s *RedisStore) Remove(ctx context.Context, path string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Del(ctx, docKey(path))
	collection := collectionOf(path)
	if field, ok := indexedFields[collection]; ok {
		pipe.ZRem(ctx, indexKey(collection, field), path)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail("removing "+path, err, domain.ErrWriteFailed)
	}
	return nil
}

// Query returns the documents under path ordered ascending by orderBy.
// Indexed collections use their ZSET; anything else falls back to a scan
// and an in-memory sort.
func (s *RedisStore) Query(ctx context.Context, path, orderBy string, opts ...QueryOption) ([]Document, error) {
	o := buildOptions(opts)
	if field, ok := indexedFields[path]; ok && field == orderBy {
		return s.queryIndexed(ctx, path, orderBy, o)
	}
	return s.queryScan(ctx, path, orderBy, o)
}

func (s *RedisStore) queryIndexed(ctx context.Context, path, orderBy string, o queryOptions) ([]Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if o.hasEndAt {
		rangeBy.Max = strconv.FormatFloat(o.endAt, 'f', -1, 64)
	}
	if o.limit > 0 {
		rangeBy.Count = int64(o.limit)
	}

	paths, err := s.client.ZRangeByScore(ctx, indexKey(path, orderBy), rangeBy).Result()
	if err != nil {
		return nil, s.fail("querying "+path, err, domain.ErrReadFailed)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = docKey(p)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.fail("querying "+path, err, domain.ErrReadFailed)
	}

	docs := make([]Document, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a document, likely mid-delete
			s.logger.Warn("dangling index entry", "path", paths[i])
			continue
		}
		docs = append(docs, Document(str))
	}
	return docs, nil
}

func (s *RedisStore) queryScan(ctx context.Context, path, orderBy string, o queryOptions) ([]Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, docKey(path)+"/*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, s.fail("scanning "+path, err, domain.ErrReadFailed)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.fail("querying "+path, err, domain.ErrReadFailed)
	}

	docs := make([]Document, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			docs = append(docs, Document(str))
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return orderField(docs[i], orderBy) < orderField(docs[j], orderBy)
	})

	if o.hasEndAt {
		cut := len(docs)
		for i, doc := range docs {
			if orderField(doc, orderBy) > o.endAt {
				cut = i
				break
			}
		}
		docs = docs[:cut]
	}
	if o.limit > 0 && len(docs) > o.limit {
		docs = docs[:o.limit]
	}
	return docs, nil
}

// RebuildIndexes rescans every indexed collection and rewrites its ZSET.
// Run at startup to recover from index drift after partial writes.
func (s *RedisStore) RebuildIndexes(ctx context.Context) error {
	for collection, field := range indexedFields {
		opCtx, cancel := s.bound(ctx)

		var keys []string
		iter := s.client.Scan(opCtx, 0, docKey(collection)+"/*", 0).Iterator()
		for iter.Next(opCtx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			cancel()
			return s.fail("rebuilding index for "+collection, err, domain.ErrReadFailed)
		}

		pipe := s.client.Pipeline()
		pipe.Del(opCtx, indexKey(collection, field))
		for _, key := range keys {
			data, err := s.client.Get(opCtx, key).Bytes()
			if err != nil {
				continue
			}
			path := key[len("doc:"):]
			pipe.ZAdd(opCtx, indexKey(collection, field), redis.Z{
				Score:  orderField(data, field),
				Member: path,
			})
		}
		if _, err := pipe.Exec(opCtx); err != nil {
			cancel()
			return s.fail("rebuilding index for "+collection, err, domain.ErrWriteFailed)
		}
		cancel()
		s.logger.Info("rebuilt ordering index", "collection", collection, "entries", len(keys))
	}
	return nil
}
