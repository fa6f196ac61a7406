// Package blobstore stores checkpoint blobs by name.
//
// Store is the interface for reading and writing whole blobs. Implementations
// must be safe for concurrent use and return an error satisfying
// errors.Is(err, ErrNotFound) for missing blobs.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral runs
//   - LocalStore: local filesystem with atomic renames
//   - CachingStore: byte-bounded LRU read cache in front of another Store
//   - s3.Store: Amazon S3, with s3.DDBStore for a DynamoDB-backed pointer
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
