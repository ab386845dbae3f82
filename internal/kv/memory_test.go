package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetWithExpiry(ctx, "k", "v", time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryStore_LazyExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithExpiry(ctx, "k", "v", 30*time.Millisecond))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must be gone on read")

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_HashMerge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetHash(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	// Merge semantics: only the given fields are written.
	require.NoError(t, s.SetHash(ctx, "h", map[string]string{"b": "3"}))

	fields, err := s.GetHash(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, fields)

	require.NoError(t, s.DeleteHashField(ctx, "h", "a"))
	v, ok, err := s.GetHashField(ctx, "h", "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestMemoryStore_HashExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetHash(ctx, "h", map[string]string{"a": "1"}))
	require.NoError(t, s.Expire(ctx, "h", 30*time.Millisecond))

	time.Sleep(50 * time.Millisecond)

	fields, err := s.GetHash(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestMemoryStore_SetIfAbsentWithExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetIfAbsentWithExpiry(ctx, "lock", "a", 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsentWithExpiry(ctx, "lock", "b", 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "held key must not be re-acquired")

	// After the TTL the key can be taken again without an explicit delete.
	time.Sleep(50 * time.Millisecond)
	ok, err = s.SetIfAbsentWithExpiry(ctx, "lock", "c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_SetIfAbsentAtomicity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetIfAbsentWithExpiry(ctx, "lock", "x", time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won, "exactly one concurrent caller must win")
}

func TestMemoryStore_ScanKeys(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithExpiry(ctx, "room:a", "1", time.Minute))
	require.NoError(t, s.SetHash(ctx, "room:b", map[string]string{"f": "1"}))
	require.NoError(t, s.SetWithExpiry(ctx, "other:c", "1", time.Minute))
	require.NoError(t, s.SetWithExpiry(ctx, "room:expired", "1", 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)

	keys, err := s.ScanKeys(ctx, "room:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"room:a", "room:b"}, keys)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetWithExpiry(ctx, "a", "1", time.Minute))
	require.NoError(t, s.SetHash(ctx, "b", map[string]string{"f": "1"}))
	require.NoError(t, s.Delete(ctx, "a", "b"))

	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = s.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), "memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), "bogus://")
	assert.Error(t, err)
}
