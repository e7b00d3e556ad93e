package postgres

import (
	"context"
	"database/sql"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, filename, content_type, size_bytes, checksum, owner_id, tenant_id,
	title, description, tags, attributes, status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		tags, attrs []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.Filename,
		&d.ContentType,
		&d.SizeBytes,
		&d.Checksum,
		&d.OwnerID,
		&d.TenantID,
		&d.Title,
		&d.Description,
		&tags,
		&attrs,
		&d.Status,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unjsonb(tags, &d.Tags); err != nil {
		return nil, err
	}
	if err := unjsonb(attrs, &d.Attributes); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateWithUpload inserts the document, its primary storage location, the
// first version and the upload audit entry in a single transaction.
func (r *DocumentPostgres) CreateWithUpload(ctx context.Context, up *repository.UploadRecord) (*model.Document, error) {
	tags, err := jsonb(up.Document.Tags)
	if err != nil {
		return nil, err
	}
	attrs, err := jsonb(up.Document.Attributes)
	if err != nil {
		return nil, err
	}
	auditCtx, err := jsonb(up.Audit.Context)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qDoc = `
		INSERT INTO documents (id, filename, content_type, size_bytes, checksum, owner_id, tenant_id,
			title, description, tags, attributes, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	d := up.Document
	if _, err := tx.ExecContext(ctx, qDoc,
		d.ID, d.Filename, d.ContentType, d.SizeBytes, d.Checksum, d.OwnerID, d.TenantID,
		d.Title, d.Description, tags, attrs, d.Status, d.Version, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	const qLoc = `
		INSERT INTO storage_locations (id, document_id, backend, bucket, key, region, endpoint_url, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	l := up.Location
	if _, err := tx.ExecContext(ctx, qLoc,
		l.ID, l.DocumentID, l.Backend, l.Bucket, l.Key, l.Region, l.EndpointURL, l.IsPrimary, l.CreatedAt,
	); err != nil {
		return nil, err
	}

	const qVer = `
		INSERT INTO document_versions (id, document_id, version, description, size_bytes, checksum,
			backend, bucket, key, region, endpoint_url, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	v := up.Version
	if _, err := tx.ExecContext(ctx, qVer,
		v.ID, v.DocumentID, v.Version, v.Description, v.SizeBytes, v.Checksum,
		v.Backend, v.Bucket, v.Key, v.Region, v.EndpointURL, v.CreatedBy, v.CreatedAt,
	); err != nil {
		return nil, err
	}

	a := up.Audit
	if _, err := tx.ExecContext(ctx, qInsertAudit,
		a.ID, nullable(a.DocumentID), a.Action, a.UserID, a.TenantID,
		a.RequestID, a.Status, a.ErrorMessage, auditCtx, a.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := up.Document
	return &out, nil
}

// FindByID fetches a tenant's document by ID, excluding soft-deleted rows.
func (r *DocumentPostgres) FindByID(ctx context.Context, tenantID, id string) (*model.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND tenant_id = $2 AND status <> 'deleted'
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, id, tenantID))
}

// FindPrimaryLocation returns the document's primary storage location.
func (r *DocumentPostgres) FindPrimaryLocation(ctx context.Context, documentID string) (*model.StorageLocation, error) {
	const q = `
		SELECT id, document_id, backend, bucket, key, region, endpoint_url, is_primary, created_at
		FROM storage_locations
		WHERE document_id = $1 AND is_primary = TRUE
	`
	row := r.db.QueryRowContext(ctx, q, documentID)
	var l model.StorageLocation
	if err := row.Scan(
		&l.ID,
		&l.DocumentID,
		&l.Backend,
		&l.Bucket,
		&l.Key,
		&l.Region,
		&l.EndpointURL,
		&l.IsPrimary,
		&l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListVersions returns all versions of a document, newest first.
func (r *DocumentPostgres) ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	const q = `
		SELECT id, document_id, version, description, size_bytes, checksum,
			backend, bucket, key, region, endpoint_url, created_by, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]model.DocumentVersion, 0)
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(
			&v.ID,
			&v.DocumentID,
			&v.Version,
			&v.Description,
			&v.SizeBytes,
			&v.Checksum,
			&v.Backend,
			&v.Bucket,
			&v.Key,
			&v.Region,
			&v.EndpointURL,
			&v.CreatedBy,
			&v.CreatedAt,
		); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return versions, nil
}

// List returns a filtered page of a tenant's documents and the total count.
func (r *DocumentPostgres) List(ctx context.Context, tenantID string, f repository.ListFilter, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const predicates = `
		WHERE tenant_id = $1 AND status <> 'deleted'
			AND ($2::text = '' OR owner_id = $2)
			AND ($3::text = '' OR status = $3)
			AND ($4::text = '' OR tags @> to_jsonb(ARRAY[$4]))
	`

	const qCount = `SELECT COUNT(*) FROM documents` + predicates
	var total int
	if err := r.db.QueryRowContext(ctx, qCount,
		tenantID, f.OwnerID, string(f.Status), f.Tag,
	).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + documentColumns + `
		FROM documents` + predicates + `
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`
	rows, err := r.db.QueryContext(ctx, qList,
		tenantID, f.OwnerID, string(f.Status), f.Tag, pq.Limit, pq.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateMetadata applies a partial update and returns the stored document.
func (r *DocumentPostgres) UpdateMetadata(ctx context.Context, tenantID, id string, upd repository.DocumentUpdate) (*model.Document, error) {
	tags, err := jsonb(upd.Tags)
	if err != nil {
		return nil, err
	}
	attrs, err := jsonb(upd.Attributes)
	if err != nil {
		return nil, err
	}
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	const q = `
		UPDATE documents SET
			title = COALESCE($3, title),
			description = COALESCE($4, description),
			tags = COALESCE($5, tags),
			attributes = COALESCE($6, attributes),
			status = COALESCE($7, status),
			updated_at = $8
		WHERE id = $1 AND tenant_id = $2 AND status <> 'deleted'
		RETURNING ` + documentColumns + `
	`
	return scanDocument(r.db.QueryRowContext(ctx, q,
		id, tenantID, upd.Title, upd.Description, tags, attrs, status, nowUTC(),
	))
}

// SoftDelete marks a document deleted. Already-deleted and absent rows
// report false.
func (r *DocumentPostgres) SoftDelete(ctx context.Context, tenantID, id string) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'deleted', updated_at = $3
		WHERE id = $1 AND tenant_id = $2 AND status <> 'deleted'
	`
	res, err := r.db.ExecContext(ctx, q, id, tenantID, nowUTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
