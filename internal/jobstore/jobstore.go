// Package jobstore is the job coordinator: short-lived job and session records
// with a TTL, the scan work queue, a generic namespaced cache and a sliding
// window rate limiter. All state lives in an external key/value store so that
// concurrent orchestrator instances share it; the store serializes conflicting
// updates (last write wins on overlapping field sets).
package jobstore

import (
	"context"
	"time"

	"docvault/internal/model"
)

// Key namespaces in the underlying store.
const (
	uploadSessionPrefix = "upload_session:"
	scanJobPrefix       = "scan_job:"
	scanQueueKey        = "scan_queue"
	cachePrefix         = "cache:"
	rateLimitPrefix     = "rate_limit:"
)

// minUpdateTTL is the floor applied to a record's remaining TTL on update.
// Updates never extend a record's life beyond this minimum.
const minUpdateTTL = 60 * time.Second

// UploadSessionPatch is a partial update of an upload session record.
// Nil fields are left unchanged.
type UploadSessionPatch struct {
	UploadedSize *int64
	Status       *model.UploadSessionStatus
	ErrorMessage *string
}

// ScanJobPatch is a partial update of a scan job record. Nil fields are left
// unchanged.
type ScanJobPatch struct {
	Status       *model.ScanStatus
	Result       *model.ScanResultType
	Threats      []model.ThreatDetail
	DurationMS   *int64
	ErrorMessage *string
}

// Store is the job coordinator contract.
//
// Update on an absent or expired key is a no-op reporting (false, nil): the
// caller must treat the job as lost, not recreate it. The scan queue may hold
// an id whose record has already expired; consumers finding no record after a
// dequeue must log and drop the job.
type Store interface {
	CreateUploadSession(ctx context.Context, s model.UploadSession, ttl time.Duration) error
	GetUploadSession(ctx context.Context, id string) (*model.UploadSession, error)
	UpdateUploadSession(ctx context.Context, id string, patch UploadSessionPatch) (bool, error)
	DeleteUploadSession(ctx context.Context, id string) (bool, error)

	// CreateScanJob stores the TTL-bound record and pushes the scan id onto
	// the work queue. The push happens exactly once, at creation.
	CreateScanJob(ctx context.Context, job model.ScanJobRecord, ttl time.Duration) error
	GetScanJob(ctx context.Context, id string) (*model.ScanJobRecord, error)
	UpdateScanJob(ctx context.Context, id string, patch ScanJobPatch) (bool, error)
	DeleteScanJob(ctx context.Context, id string) (bool, error)

	// DequeueScanJob blocks up to timeout for the next scan id, FIFO. An empty
	// queue yields ("", nil) after the timeout, never an error. Each id is
	// delivered to at most one caller per push.
	DequeueScanJob(ctx context.Context, timeout time.Duration) (string, error)
	QueueDepth(ctx context.Context) (int64, error)

	// Generic JSON cache; callers choose the key namespace.
	CacheSet(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheGet(ctx context.Context, key string, dest any) (bool, error)
	CacheDelete(ctx context.Context, key string) (bool, error)

	// Allow reports whether another request under key fits within limit per
	// sliding window. Store failures fail open (true) alongside the error.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
