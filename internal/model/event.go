package model

import "time"

// Event is the envelope published to the event bus for every lifecycle event.
type Event struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Data          any       `json:"data"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// UploadedEvent is the payload for document.uploaded.
type UploadedEvent struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	OwnerID     string `json:"owner_id"`
	TenantID    string `json:"tenant_id"`
}

// ScannedEvent is the payload for document.scanned.
type ScannedEvent struct {
	DocumentID string         `json:"document_id"`
	ScanID     string         `json:"scan_id"`
	Result     ScanResultType `json:"result"`
	Threats    []ThreatDetail `json:"threats"`
	TenantID   string         `json:"tenant_id"`
}

// DeletedEvent is the payload for document.deleted.
type DeletedEvent struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	OwnerID    string `json:"owner_id"`
	TenantID   string `json:"tenant_id"`
}

// UpdatedEvent is the payload for document.updated.
type UpdatedEvent struct {
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	OwnerID    string   `json:"owner_id"`
	TenantID   string   `json:"tenant_id"`
	Changes    []string `json:"changes"`
}
