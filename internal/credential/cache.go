package credential

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a ContentStore with a Redis read-through cache.
// Documents are immutable once addressed, so cached entries never need
// invalidation, only expiry to bound memory.
type CachedStore struct {
	inner ContentStore
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCached constructs a read-through cache in front of a content store.
func NewCached(inner ContentStore, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, rdb: rdb, ttl: ttl}
}

func cacheKey(cid string) string {
	return "credential:" + cid
}

func (s *CachedStore) Get(ctx context.Context, cid string) ([]byte, error) {
	doc, err := s.rdb.Get(ctx, cacheKey(cid)).Bytes()
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, redis.Nil) {
		// cache trouble degrades to the inner store, never to a failure
		doc, innerErr := s.inner.Get(ctx, cid)
		return doc, innerErr
	}

	doc, err = s.inner.Get(ctx, cid)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, cacheKey(cid), doc, s.ttl)
	return doc, nil
}

func (s *CachedStore) Put(ctx context.Context, doc []byte) (string, error) {
	cid, err := s.inner.Put(ctx, doc)
	if err != nil {
		return "", err
	}
	s.rdb.Set(ctx, cacheKey(cid), doc, s.ttl)
	return cid, nil
}
