// Package kv provides a namespaced key/value store with hash-field semantics,
// TTL expiry and an atomic set-if-absent primitive. Two backends satisfy the
// same contract: a networked Redis store and an in-process fallback.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable indicates the backend could not be reached. Callers must
// treat it as "cannot determine state", never as a negative result.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the contract shared by the Redis and in-memory backends.
// Values are opaque strings; structured data is serialized by the caller.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsentWithExpiry atomically sets key only when it does not exist.
	// This is the only primitive the lock depends on.
	SetIfAbsentWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// SetHash merges the given fields into the hash at key; other fields
	// are left untouched.
	SetHash(ctx context.Context, key string, fields map[string]string) error
	GetHash(ctx context.Context, key string) (map[string]string, error)
	GetHashField(ctx context.Context, key, field string) (string, bool, error)
	DeleteHashField(ctx context.Context, key string, fields ...string) error

	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, prefix string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend by URL: "redis://host:port/db" for the networked
// store, "memory://" for the in-process fallback. The fallback is a valid
// substitute for all lock/TTL/hash semantics but is single-process only.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "memory://"):
		return NewMemoryStore(), nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		s, err := NewRedisStore(url)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("kv: unsupported store url %q", url)
	}
}
