package model

import "time"

// Transient records tracked by the job coordinator. These live in the
// key/value store with a TTL and are never persisted to the database.

// UploadSessionStatus is the status of an in-progress upload session.
type UploadSessionStatus string

const (
	UploadSessionPending    UploadSessionStatus = "pending"
	UploadSessionProcessing UploadSessionStatus = "processing"
	UploadSessionCompleted  UploadSessionStatus = "completed"
	UploadSessionFailed     UploadSessionStatus = "failed"
)

// UploadSession tracks a multi-chunk upload until it completes or expires.
type UploadSession struct {
	SessionID    string              `json:"session_id"`
	UserID       string              `json:"user_id"`
	TenantID     string              `json:"tenant_id"`
	Filename     string              `json:"filename"`
	ContentType  string              `json:"content_type"`
	ExpectedSize int64               `json:"expected_size"`
	UploadedSize int64               `json:"uploaded_size"`
	Status       UploadSessionStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ScanJobRecord is the coordinator-side view of a scan job. The durable
// ScanResult row is written separately by the scan orchestrator.
type ScanJobRecord struct {
	ScanID       string         `json:"scan_id"`
	DocumentID   string         `json:"document_id"`
	UserID       string         `json:"user_id"`
	TenantID     string         `json:"tenant_id"`
	Status       ScanStatus     `json:"status"`
	Result       ScanResultType `json:"result,omitempty"`
	Threats      []ThreatDetail `json:"threats,omitempty"`
	DurationMS   int64          `json:"duration_ms,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
