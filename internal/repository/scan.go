package repository

import (
	"context"

	"docvault/internal/model"
)

// ScanRepository persists scan outcomes. Result rows are written once, after
// the scan reaches a terminal state, and are never updated.
type ScanRepository interface {
	// CreateResult inserts a scan result and its threat rows in one
	// transaction and returns the stored result.
	CreateResult(ctx context.Context, res *model.ScanResult) (*model.ScanResult, error)

	// GetLatestByDocument returns the most recent scan result for a document
	// with its threats loaded, or sql.ErrNoRows when none exists.
	GetLatestByDocument(ctx context.Context, documentID string) (*model.ScanResult, error)
}
