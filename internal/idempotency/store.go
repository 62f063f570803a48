// Package idempotency implements C8: an optional dispatcher-level decorator
// that replays a cached PushResult for a repeated idempotencyKey instead of
// re-dispatching to the vendor, adapted from the teacher's read-aside
// CachedTokenStore decorator (internal/storage/cache/tokenstore.go) and
// generalized from token lookups to result caching (SPEC_FULL.md §12).
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Store reads a cached result for a key, or records one. A miss is
// reported by returning (zero value, false, nil); a Get/Set error is only
// returned for real backend failures, which callers treat as "no cache,
// dispatch normally" rather than failing the push.
type Store interface {
	Get(ctx context.Context, key string) (push.PushResult, bool, error)
	Set(ctx context.Context, key string, result push.PushResult, ttl time.Duration) error
}

// MemoryStore is an in-process Store backed by a mutex-guarded map, used
// for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	result  push.PushResult
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (push.PushResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return push.PushResult{}, false, nil
	}
	if time.Now().After(entry.expires) {
		delete(s.entries, key)
		return push.PushResult{}, false, nil
	}
	return entry.result, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, result push.PushResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{result: result, expires: time.Now().Add(ttl)}
	return nil
}

// RedisStore is a Store backed by go-redis, mirroring the teacher's
// RedisClient wrapper (internal/storage/cache/redusclient.go) generalized
// from the token cache's Get/Set/Del trio to PushResult values.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a RedisStore and fails fast if the server is
// unreachable, exactly as the teacher's NewRedisClient does.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("idempotency: redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (push.PushResult, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return push.PushResult{}, false, nil
		}
		return push.PushResult{}, false, err
	}
	var result push.PushResult
	if err := json.Unmarshal(val, &result); err != nil {
		return push.PushResult{}, false, err
	}
	return result, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result push.PushResult, ttl time.Duration) error {
	bytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, bytes, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Sender is the subset of dispatch.Dispatcher/dispatch.WebDispatcher the
// decorator wraps.
type Sender interface {
	Send(ctx context.Context, req push.PushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult
}

// RawSender is additionally implemented by dispatch.Dispatcher for
// providers that accept RawPushRequest forwarding.
type RawSender interface {
	Sender
	SendRaw(ctx context.Context, req push.RawPushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult
}

// DecoratedSender replays a cached PushResult for a repeated
// idempotencyKey within ttl instead of re-dispatching. Caching failures
// are logged-and-ignored by the caller's discretion; this decorator
// itself just falls through to a real dispatch on any Get/Set error.
type DecoratedSender struct {
	next  Sender
	store Store
	ttl   time.Duration
}

func NewDecoratedSender(next Sender, store Store, ttl time.Duration) *DecoratedSender {
	return &DecoratedSender{next: next, store: store, ttl: ttl}
}

func (d *DecoratedSender) Send(ctx context.Context, req push.PushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	if req.IdempotencyKey == "" {
		return d.next.Send(ctx, req, retryOpts, totalTimeoutMs)
	}

	key := cacheKey(req.Provider, req.IdempotencyKey)
	if cached, ok, err := d.store.Get(ctx, key); err == nil && ok {
		return cached
	}

	result := d.next.Send(ctx, req, retryOpts, totalTimeoutMs)
	_ = d.store.Set(ctx, key, result, d.ttl)
	return result
}

// SendRaw forwards to the wrapped sender's SendRaw, applying the same
// replay-by-idempotencyKey behavior as Send. If next does not implement
// RawSender (Web Push), it returns an INVALID_REQUEST result without
// dispatching.
func (d *DecoratedSender) SendRaw(ctx context.Context, req push.RawPushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	rawNext, ok := d.next.(RawSender)
	if !ok {
		return push.PushResult{
			Status:       push.StatusInvalidRequest,
			ResultSource: push.SourceClient,
			Reason:       "provider does not support raw push",
		}
	}
	if req.IdempotencyKey == "" {
		return rawNext.SendRaw(ctx, req, retryOpts, totalTimeoutMs)
	}

	key := cacheKey(req.Provider, req.IdempotencyKey)
	if cached, ok, err := d.store.Get(ctx, key); err == nil && ok {
		return cached
	}

	result := rawNext.SendRaw(ctx, req, retryOpts, totalTimeoutMs)
	_ = d.store.Set(ctx, key, result, d.ttl)
	return result
}

func cacheKey(provider push.Provider, idempotencyKey string) string {
	return fmt.Sprintf("pushgateway:idempotency:%s:%s", provider, idempotencyKey)
}
