package model

import "time"

// Package model contains pure domain types shared across layers.
// No database tags and no business logic here; persistence mapping lives in
// the repository implementations.

// DocumentStatus is the lifecycle status of a document.
type DocumentStatus string

const (
	DocumentStatusActive      DocumentStatus = "active"
	DocumentStatusArchived    DocumentStatus = "archived"
	DocumentStatusDeleted     DocumentStatus = "deleted"
	DocumentStatusProcessing  DocumentStatus = "processing"
	DocumentStatusQuarantined DocumentStatus = "quarantined"
)

// StorageBackend identifies the object store kind holding a location.
type StorageBackend string

const (
	BackendS3    StorageBackend = "s3"
	BackendMinIO StorageBackend = "minio"
	BackendGCS   StorageBackend = "gcs"
	BackendAzure StorageBackend = "azure"
)

// Document represents a stored file and its metadata.
// Checksum is the sha256 hex digest of the bytes at the current primary
// storage location; SizeBytes and Checksum always describe the same upload.
type Document struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Checksum    string            `json:"checksum"`
	OwnerID     string            `json:"owner_id"`
	TenantID    string            `json:"tenant_id"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags"`
	Attributes  map[string]string `json:"attributes"`
	Status      DocumentStatus    `json:"status"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// StorageLocation is where a document's bytes live.
// A document has exactly one primary location at a time; non-primary rows
// belong to prior versions.
type StorageLocation struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Backend     StorageBackend `json:"backend"`
	Bucket      string         `json:"bucket"`
	Key         string         `json:"key"`
	Region      string         `json:"region"`
	EndpointURL string         `json:"endpoint_url,omitempty"`
	IsPrimary   bool           `json:"is_primary"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DocumentVersion is an immutable snapshot of one upload.
// Version numbers are monotonic starting at 1; rows are never mutated and are
// removed only by cascade delete of the parent document.
type DocumentVersion struct {
	ID          string         `json:"id"`
	DocumentID  string         `json:"document_id"`
	Version     int            `json:"version"`
	Description string         `json:"description,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Checksum    string         `json:"checksum"`
	Backend     StorageBackend `json:"backend"`
	Bucket      string         `json:"bucket"`
	Key         string         `json:"key"`
	Region      string         `json:"region"`
	EndpointURL string         `json:"endpoint_url,omitempty"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditAction enumerates auditable document actions.
type AuditAction string

const (
	AuditActionUpload AuditAction = "upload"
	AuditActionGet    AuditAction = "get"
	AuditActionDelete AuditAction = "delete"
	AuditActionUpdate AuditAction = "update"
	AuditActionScan   AuditAction = "scan"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// AuditLog is an append-only record of an action against a document.
type AuditLog struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id,omitempty"`
	Action       AuditAction    `json:"action"`
	UserID       string         `json:"user_id"`
	TenantID     string         `json:"tenant_id"`
	RequestID    string         `json:"request_id,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
