// Package redis keeps document records in Redis so that idempotency can be
// shared across graph backends or machines.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// Store implements storage.DocumentStore. Each record is a JSON value at
// <prefix>doc:<hash>.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, storage.Unavailable("redis", err)
	}
	return &Store{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (s *Store) key(hash string) string {
	return fmt.Sprintf("%sdoc:%s", s.prefix, hash)
}

// QueryByHash returns the record for hash, or storage.ErrNotFound.
func (s *Store) QueryByHash(ctx context.Context, hash string) (*types.DocumentRecord, error) {
	val, err := s.rdb.Get(ctx, s.key(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", hash, err)
	}

	var rec types.DocumentRecord
	if err := jsoniter.UnmarshalFromString(val, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode record %s: %w", hash, err)
	}
	return &rec, nil
}

// WriteDocumentRecord stores rec without expiry, replacing any previous value.
func (s *Store) WriteDocumentRecord(ctx context.Context, rec types.DocumentRecord) error {
	if err := storage.ValidateHash(rec.ContentHash); err != nil {
		return err
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	rec.IngestedAt = rec.IngestedAt.UTC()

	b, err := jsoniter.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: encode record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(rec.ContentHash), b, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", rec.ContentHash, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

var _ storage.DocumentStore = (*Store)(nil)
