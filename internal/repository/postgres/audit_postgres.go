package postgres

import (
	"context"
	"database/sql"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// AuditPostgres is a PostgreSQL implementation of repository.AuditRepository.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres repository.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

const qInsertAudit = `
	INSERT INTO audit_logs (id, document_id, action, user_id, tenant_id, request_id, status, error_message, context, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Insert appends one audit entry.
func (r *AuditPostgres) Insert(ctx context.Context, entry *model.AuditLog) error {
	auditCtx, err := jsonb(entry.Context)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, qInsertAudit,
		entry.ID,
		nullable(entry.DocumentID),
		entry.Action,
		entry.UserID,
		entry.TenantID,
		entry.RequestID,
		entry.Status,
		entry.ErrorMessage,
		auditCtx,
		entry.CreatedAt,
	)
	return err
}

// ListByDocument returns a document's audit trail, newest first.
func (r *AuditPostgres) ListByDocument(ctx context.Context, documentID string, pq repository.PageQuery) ([]model.AuditLog, error) {
	const q = `
		SELECT id, COALESCE(document_id, ''), action, user_id, tenant_id, request_id, status, error_message, context, created_at
		FROM audit_logs
		WHERE document_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, q, documentID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.AuditLog, 0)
	for rows.Next() {
		var (
			e   model.AuditLog
			raw []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.DocumentID,
			&e.Action,
			&e.UserID,
			&e.TenantID,
			&e.RequestID,
			&e.Status,
			&e.ErrorMessage,
			&raw,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := unjsonb(raw, &e.Context); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
