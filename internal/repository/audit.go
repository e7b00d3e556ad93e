package repository

import (
	"context"

	"docvault/internal/model"
)

// AuditRepository is an append-only log of actions against documents.
// Entries are never updated or deleted.
type AuditRepository interface {
	// Insert appends one audit entry.
	Insert(ctx context.Context, entry *model.AuditLog) error

	// ListByDocument returns a document's audit trail, newest first.
	ListByDocument(ctx context.Context, documentID string, pq PageQuery) ([]model.AuditLog, error)
}
