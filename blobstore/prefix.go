package blobstore

import (
	"context"
	"path"
	"strings"
)

// PrefixStore scopes a Store to the names below a directory-like prefix.
type PrefixStore struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of s rooted at prefix. An empty prefix returns s.
func WithPrefix(s Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return &PrefixStore{inner: s, prefix: prefix}
}

func (s *PrefixStore) key(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return path.Join(s.prefix, name), nil
}

// Get implements Store.
func (s *PrefixStore) Get(ctx context.Context, name string) ([]byte, error) {
	k, err := s.key(name)
	if err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, k)
}

// Put implements Store.
func (s *PrefixStore) Put(ctx context.Context, name string, data []byte) error {
	k, err := s.key(name)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, k, data)
}

// Delete implements Store.
func (s *PrefixStore) Delete(ctx context.Context, name string) error {
	k, err := s.key(name)
	if err != nil {
		return err
	}
	return s.inner.Delete(ctx, k)
}

// List implements Store. Returned names are relative to the prefix.
func (s *PrefixStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.prefix + "/"
	names, err := s.inner.List(ctx, root+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimPrefix(n, root))
	}
	return out, nil
}
