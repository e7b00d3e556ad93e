package model

import "time"

// ScanStatus is the lifecycle status of a scan job. Transitions are
// forward-only; completed and failed are terminal.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusScanning  ScanStatus = "scanning"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanResultType classifies the outcome of a completed scan.
type ScanResultType string

const (
	ScanResultClean      ScanResultType = "clean"
	ScanResultInfected   ScanResultType = "infected"
	ScanResultSuspicious ScanResultType = "suspicious"
	ScanResultError      ScanResultType = "error"
)

// ThreatSeverity grades a detected threat.
type ThreatSeverity string

const (
	SeverityLow      ThreatSeverity = "low"
	SeverityMedium   ThreatSeverity = "medium"
	SeverityHigh     ThreatSeverity = "high"
	SeverityCritical ThreatSeverity = "critical"
)

// ThreatDetail describes one threat found by a scan. Rows are owned
// exclusively by their ScanResult.
type ThreatDetail struct {
	ID          string         `json:"id"`
	ScanID      string         `json:"scan_id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Severity    ThreatSeverity `json:"severity"`
	Description string         `json:"description,omitempty"`
}

// ScanResult is the persisted outcome of screening one document.
type ScanResult struct {
	ID             string         `json:"scan_id"`
	DocumentID     string         `json:"document_id"`
	Status         ScanStatus     `json:"status"`
	Result         ScanResultType `json:"result"`
	Threats        []ThreatDetail `json:"threats"`
	ScannerVersion string         `json:"scanner_version,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// Terminal reports whether the scan status permits no further transition.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}
