package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hupe1980/dgcnn/blobstore"
	"github.com/hupe1980/dgcnn/blobstore/minio"
	"github.com/hupe1980/dgcnn/blobstore/s3"
	"github.com/hupe1980/dgcnn/checkpoint"
)

// storeURI is a parsed -store value.
type storeURI struct {
	Scheme string
	Host   string // bucket for s3, endpoint for minio
	Bucket string // minio only
	Path   string // directory or key prefix
	Secure bool
}

func parseStoreURI(raw string) (storeURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return storeURI{}, fmt.Errorf("invalid store %q: %w", raw, err)
	}
	s := storeURI{Scheme: u.Scheme}
	switch u.Scheme {
	case "mem":
	case "file":
		// file://./runs parses ./runs as host "." and path "/runs".
		s.Path = u.Host + u.Path
		if s.Path == "" {
			return storeURI{}, fmt.Errorf("store %q has no directory", raw)
		}
	case "s3":
		if u.Host == "" {
			return storeURI{}, fmt.Errorf("store %q has no bucket", raw)
		}
		s.Host = u.Host
		s.Path = strings.Trim(u.Path, "/")
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if u.Host == "" || bucket == "" {
			return storeURI{}, fmt.Errorf("store %q needs minio://host/bucket", raw)
		}
		s.Host, s.Bucket, s.Path = u.Host, bucket, prefix
		s.Secure = u.Query().Get("secure") == "true"
	default:
		return storeURI{}, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
	return s, nil
}

// String renders the URI of the directory dir below the store root.
func (s storeURI) String(dir string) string {
	p := path.Join(s.Path, dir)
	switch s.Scheme {
	case "mem":
		return "mem://" + p
	case "file":
		return "file://" + p
	case "minio":
		return "minio://" + path.Join(s.Host, s.Bucket, p)
	default:
		return s.Scheme + "://" + path.Join(s.Host, p)
	}
}

var (
	memOnce  sync.Once
	memStore *blobstore.MemoryStore
)

func sharedMemoryStore() *blobstore.MemoryStore {
	memOnce.Do(func() { memStore = blobstore.NewMemoryStore() })
	return memStore
}

// openStore returns a store rooted at dir below the store root. With a
// DynamoDB table, the checkpoint pointer of s3 stores is committed there.
func openStore(ctx context.Context, s storeURI, dir, ddbTable string) (blobstore.Store, error) {
	var (
		store blobstore.Store
		err   error
	)
	switch s.Scheme {
	case "mem":
		store = blobstore.WithPrefix(sharedMemoryStore(), dir)
	case "file":
		root := filepath.Join(filepath.FromSlash(s.Path), filepath.FromSlash(dir))
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
		store = blobstore.NewLocalStore(root)
	case "s3":
		store, err = s3.New(ctx, s.Host, s3.WithPrefix(path.Join(s.Path, dir)))
	case "minio":
		store, err = minio.Dial(ctx, s.Host, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"),
			s.Bucket, path.Join(s.Path, dir), s.Secure)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", s.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if ddbTable != "" {
		if s.Scheme != "s3" {
			return nil, fmt.Errorf("-ddb_table requires an s3 store, got %s", s.Scheme)
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		store = s3.NewDDBStore(store, dynamodb.NewFromConfig(cfg), ddbTable, s.String(dir), checkpoint.PointerName)
	}
	return store, nil
}
