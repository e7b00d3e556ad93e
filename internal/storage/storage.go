// Package storage contains the object storage gateway abstraction over
// S3-compatible backends. Implementations must avoid using local disk and
// rely on streaming I/O only. Every backend-specific failure is normalized
// into the apperr taxonomy before it leaves this package; callers branch on
// error kind, never on backend error codes.
package storage

import (
	"context"
	"io"
	"time"

	"docvault/internal/model"
)

// Location identifies one stored object. It mirrors model.StorageLocation
// minus the persistence identity fields.
type Location struct {
	Backend     model.StorageBackend `json:"backend"`
	Bucket      string               `json:"bucket"`
	Key         string               `json:"key"`
	Region      string               `json:"region"`
	EndpointURL string               `json:"endpoint_url,omitempty"`
}

// LocationOf builds a gateway Location from a persisted storage location row.
func LocationOf(l model.StorageLocation) Location {
	return Location{
		Backend:     l.Backend,
		Bucket:      l.Bucket,
		Key:         l.Key,
		Region:      l.Region,
		EndpointURL: l.EndpointURL,
	}
}

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and
// the implementation will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// ListEntry is one object returned by List.
type ListEntry struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListResult is a page of listed objects.
type ListResult struct {
	Entries   []ListEntry
	Truncated bool
	NextToken string
}

// PresignOp selects the HTTP operation a presigned URL permits.
type PresignOp string

const (
	PresignGet PresignOp = "get"
	PresignPut PresignOp = "put"
)

// Storage is the object storage gateway. All operations are idempotent at the
// storage-object level: re-Put with the same key overwrites, Delete of a
// missing key succeeds.
type Storage interface {
	// Put uploads an object under the given key and returns its location.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (Location, error)
	// Get retrieves an object's full content.
	Get(ctx context.Context, loc Location) ([]byte, error)
	// GetStream retrieves an object's content as a streaming reader alongside its info.
	GetStream(ctx context.Context, loc Location) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, loc Location) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, loc Location) (bool, error)
	// Stat returns object metadata without reading content.
	Stat(ctx context.Context, loc Location) (ObjectInfo, error)
	// Presign returns a time-limited URL for the given operation.
	Presign(ctx context.Context, loc Location, expiry time.Duration, op PresignOp) (string, error)
	// List returns a page of objects under prefix.
	List(ctx context.Context, prefix string, limit int, token string) (ListResult, error)
	// Copy duplicates an object within the backend.
	Copy(ctx context.Context, src, dst Location) error
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}
