package blobstore

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// CachingStore wraps a Store with a byte-bounded LRU cache of whole blobs.
// Writes and deletes go through to the inner store and invalidate the entry.
type CachingStore struct {
	inner    Store
	maxBytes int64

	mu      sync.Mutex
	lru     *list.List
	entries map[string]*list.Element
	size    int64

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	name string
	data []byte
}

// NewCachingStore creates a cache holding at most maxBytes of blob content.
// maxBytes <= 0 defaults to 64MB.
func NewCachingStore(inner Store, maxBytes int64) *CachingStore {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &CachingStore{
		inner:    inner,
		maxBytes: maxBytes,
		lru:      list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get serves the blob from cache or loads it from the inner store.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	if el, ok := s.entries[name]; ok {
		s.lru.MoveToFront(el)
		data := slices.Clone(el.Value.(*cacheEntry).data)
		s.mu.Unlock()
		s.hits.Add(1)
		return data, nil
	}
	s.mu.Unlock()
	s.misses.Add(1)

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.add(name, data)
	return data, nil
}

// Put writes through and invalidates the cached entry.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob and its cached entry.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List is not cached.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Size returns the bytes currently cached.
func (s *CachingStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *CachingStore) add(name string, data []byte) {
	n := int64(len(data))
	if n > s.maxBytes {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[name]; ok {
		s.removeLocked(el)
	}
	s.entries[name] = s.lru.PushFront(&cacheEntry{name: name, data: slices.Clone(data)})
	s.size += n
	for s.size > s.maxBytes {
		s.removeLocked(s.lru.Back())
	}
}

func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[name]; ok {
		s.removeLocked(el)
	}
}

func (s *CachingStore) removeLocked(el *list.Element) {
	e := s.lru.Remove(el).(*cacheEntry)
	delete(s.entries, e.name)
	s.size -= int64(len(e.data))
}
