package repository

import (
	"context"

	"docvault/internal/model"
)

// UploadRecord bundles every row written when an upload commits. The
// document, its primary storage location, version 1 and the success audit
// entry are inserted in a single transaction; either all rows exist
// afterwards or none do.
type UploadRecord struct {
	Document model.Document
	Location model.StorageLocation
	Version  model.DocumentVersion
	Audit    model.AuditLog
}

// ListFilter narrows a document listing. Zero values mean "no filter".
type ListFilter struct {
	OwnerID string
	Status  model.DocumentStatus
	Tag     string
}

// DocumentUpdate is a partial metadata update. Nil fields are left unchanged.
type DocumentUpdate struct {
	Title       *string
	Description *string
	Tags        []string
	Attributes  map[string]string
	Status      *model.DocumentStatus
}

// DocumentRepository defines data access for documents using SQL queries only.
type DocumentRepository interface {
	// CreateWithUpload inserts the document, primary location, first version
	// and audit entry in one transaction and returns the stored document.
	CreateWithUpload(ctx context.Context, up *UploadRecord) (*model.Document, error)

	// FindByID returns a tenant's document by ID. Soft-deleted documents are
	// not returned; absent rows yield sql.ErrNoRows.
	FindByID(ctx context.Context, tenantID, id string) (*model.Document, error)

	// FindPrimaryLocation returns the current primary storage location of a
	// document, or sql.ErrNoRows when the document has none.
	FindPrimaryLocation(ctx context.Context, documentID string) (*model.StorageLocation, error)

	// ListVersions returns all versions of a document, newest first.
	ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error)

	// List returns a tenant's documents matching the filter, newest first,
	// with the total row count. Soft-deleted documents are excluded.
	List(ctx context.Context, tenantID string, f ListFilter, pq PageQuery) (*PageResult[model.Document], error)

	// UpdateMetadata applies a partial update and returns the stored document.
	// Absent or soft-deleted rows yield sql.ErrNoRows.
	UpdateMetadata(ctx context.Context, tenantID, id string, upd DocumentUpdate) (*model.Document, error)

	// SoftDelete marks a document deleted. It reports false when the row is
	// absent or already deleted.
	SoftDelete(ctx context.Context, tenantID, id string) (bool, error)
}
