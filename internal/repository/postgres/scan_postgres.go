package postgres

import (
	"context"
	"database/sql"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// ScanPostgres is a PostgreSQL implementation of repository.ScanRepository.
type ScanPostgres struct {
	db *sql.DB
}

// NewScanPostgres creates a new ScanPostgres repository.
func NewScanPostgres(db *sql.DB) *ScanPostgres {
	return &ScanPostgres{db: db}
}

var _ repository.ScanRepository = (*ScanPostgres)(nil)

// CreateResult inserts a terminal scan result and its threat rows in one
// transaction.
func (r *ScanPostgres) CreateResult(ctx context.Context, res *model.ScanResult) (*model.ScanResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qRes = `
		INSERT INTO scan_results (id, document_id, status, result, scanner_version, duration_ms, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, qRes,
		res.ID,
		res.DocumentID,
		res.Status,
		res.Result,
		res.ScannerVersion,
		res.DurationMS,
		res.ErrorMessage,
		res.StartedAt,
		res.CompletedAt,
	); err != nil {
		return nil, err
	}

	const qThreat = `
		INSERT INTO threat_details (id, scan_id, name, type, severity, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, t := range res.Threats {
		if _, err := tx.ExecContext(ctx, qThreat,
			t.ID, res.ID, t.Name, t.Type, t.Severity, t.Description,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *res
	return &out, nil
}

// GetLatestByDocument returns the most recent scan result for a document with
// its threats loaded.
func (r *ScanPostgres) GetLatestByDocument(ctx context.Context, documentID string) (*model.ScanResult, error) {
	const q = `
		SELECT id, document_id, status, result, scanner_version, duration_ms, error_message, started_at, completed_at
		FROM scan_results
		WHERE document_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, documentID)
	var res model.ScanResult
	if err := row.Scan(
		&res.ID,
		&res.DocumentID,
		&res.Status,
		&res.Result,
		&res.ScannerVersion,
		&res.DurationMS,
		&res.ErrorMessage,
		&res.StartedAt,
		&res.CompletedAt,
	); err != nil {
		return nil, err
	}

	threats, err := r.listThreats(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	res.Threats = threats
	return &res, nil
}

func (r *ScanPostgres) listThreats(ctx context.Context, scanID string) ([]model.ThreatDetail, error) {
	const q = `
		SELECT id, scan_id, name, type, severity, description
		FROM threat_details
		WHERE scan_id = $1
		ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, q, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threats := make([]model.ThreatDetail, 0)
	for rows.Next() {
		var t model.ThreatDetail
		if err := rows.Scan(&t.ID, &t.ScanID, &t.Name, &t.Type, &t.Severity, &t.Description); err != nil {
			return nil, err
		}
		threats = append(threats, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return threats, nil
}
