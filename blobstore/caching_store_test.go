package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := NewCachingStore(inner, 10)

	require.NoError(t, s.Put(ctx, "a", []byte("aaaa")))
	require.NoError(t, s.Put(ctx, "b", []byte("bbbb")))
	require.NoError(t, s.Put(ctx, "c", []byte("cccc")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), got)
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	hits, misses := s.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	_, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.Size())

	// "a" is least recently used and gets evicted.
	_, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(8), s.Size())
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	_, misses = s.Stats()
	assert.Equal(t, int64(4), misses)

	require.NoError(t, s.Put(ctx, "a", []byte("new")))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names)
}

func TestCachingStoreSkipsOversized(t *testing.T) {
	ctx := context.Background()
	s := NewCachingStore(NewMemoryStore(), 2)
	require.NoError(t, s.Put(ctx, "big", []byte("toolarge")))
	_, err := s.Get(ctx, "big")
	require.NoError(t, err)
	assert.Zero(t, s.Size())
}

func TestCachingStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewCachingStore(NewMemoryStore(), 0)
	require.NoError(t, s.Put(ctx, "x", []byte("abc")))

	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	got[0] = 'z'
	again, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
