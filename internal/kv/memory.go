package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback backend. Expiry is tracked in an
// internal map checked lazily on every read and scan. All operations,
// including SetIfAbsentWithExpiry, run atomically under a single mutex;
// the lock component would be unsound otherwise.
//
// Single-process only; it never fails except for programmer error.
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	expiry  map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// purgeLocked removes key if its expiry has passed. Caller holds mu.
func (s *MemoryStore) purgeLocked(key string) {
	if exp, ok := s.expiry[key]; ok && s.now().After(exp) {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.expiry, key)
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	v, ok := s.strings[key]
	return v, ok, nil
}

func (s *MemoryStore) SetWithExpiry(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	s.setExpiryLocked(key, ttl)
	return nil
}

func (s *MemoryStore) SetIfAbsentWithExpiry(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	if _, ok := s.strings[key]; ok {
		return false, nil
	}
	if _, ok := s.hashes[key]; ok {
		return false, nil
	}
	s.strings[key] = value
	s.setExpiryLocked(key, ttl)
	return true, nil
}

func (s *MemoryStore) setExpiryLocked(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
}

func (s *MemoryStore) SetHash(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

func (s *MemoryStore) GetHash(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) GetHashField(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (s *MemoryStore) DeleteHashField(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	if h, ok := s.hashes[key]; ok {
		for _, f := range fields {
			delete(h, f)
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.expiry, key)
	}
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	if _, ok := s.strings[key]; ok {
		return true, nil
	}
	_, ok := s.hashes[key]
	return ok, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(key)
	_, inStrings := s.strings[key]
	_, inHashes := s.hashes[key]
	if !inStrings && !inHashes {
		return nil
	}
	s.setExpiryLocked(key, ttl)
	return nil
}

func (s *MemoryStore) ScanKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, exp := range s.expiry {
		if now.After(exp) {
			delete(s.strings, key)
			delete(s.hashes, key)
			delete(s.expiry, key)
		}
	}
	var keys []string
	for key := range s.strings {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	for key := range s.hashes {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)
