package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id           TEXT        PRIMARY KEY,
  filename     TEXT        NOT NULL,
  content_type TEXT        NOT NULL,
  size_bytes   BIGINT      NOT NULL CHECK (size_bytes >= 0),
  checksum     TEXT        NOT NULL,
  owner_id     TEXT        NOT NULL,
  tenant_id    TEXT        NOT NULL,
  title        TEXT        NOT NULL DEFAULT '',
  description  TEXT        NOT NULL DEFAULT '',
  tags         JSONB,
  attributes   JSONB,
  status       TEXT        NOT NULL DEFAULT 'active',
  version      INT         NOT NULL DEFAULT 1,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_tenant_owner",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_tenant_owner ON documents (tenant_id, owner_id);`,
	},
	{
		Name: "create_index_documents_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
	{
		Name: "create_table_storage_locations",
		SQL: `CREATE TABLE IF NOT EXISTS storage_locations (
  id           TEXT        PRIMARY KEY,
  document_id  TEXT        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  backend      TEXT        NOT NULL,
  bucket       TEXT        NOT NULL,
  key          TEXT        NOT NULL,
  region       TEXT        NOT NULL DEFAULT '',
  endpoint_url TEXT        NOT NULL DEFAULT '',
  is_primary   BOOLEAN     NOT NULL DEFAULT FALSE,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_storage_locations_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_storage_locations_document ON storage_locations (document_id);`,
	},
	{
		Name: "create_unique_index_storage_locations_primary",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS idx_storage_locations_primary ON storage_locations (document_id) WHERE is_primary;`,
	},
	{
		Name: "create_table_document_versions",
		SQL: `CREATE TABLE IF NOT EXISTS document_versions (
  id           TEXT        PRIMARY KEY,
  document_id  TEXT        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  version      INT         NOT NULL CHECK (version >= 1),
  description  TEXT        NOT NULL DEFAULT '',
  size_bytes   BIGINT      NOT NULL CHECK (size_bytes >= 0),
  checksum     TEXT        NOT NULL,
  backend      TEXT        NOT NULL,
  bucket       TEXT        NOT NULL,
  key          TEXT        NOT NULL,
  region       TEXT        NOT NULL DEFAULT '',
  endpoint_url TEXT        NOT NULL DEFAULT '',
  created_by   TEXT        NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (document_id, version)
);`,
	},
	{
		Name: "create_table_scan_results",
		SQL: `CREATE TABLE IF NOT EXISTS scan_results (
  id              TEXT        PRIMARY KEY,
  document_id     TEXT        NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
  status          TEXT        NOT NULL,
  result          TEXT        NOT NULL,
  scanner_version TEXT        NOT NULL DEFAULT '',
  duration_ms     BIGINT      NOT NULL DEFAULT 0,
  error_message   TEXT        NOT NULL DEFAULT '',
  started_at      TIMESTAMPTZ NOT NULL,
  completed_at    TIMESTAMPTZ NOT NULL
);`,
	},
	{
		Name: "create_index_scan_results_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_scan_results_document ON scan_results (document_id, started_at DESC);`,
	},
	{
		Name: "create_table_threat_details",
		SQL: `CREATE TABLE IF NOT EXISTS threat_details (
  id          TEXT PRIMARY KEY,
  scan_id     TEXT NOT NULL REFERENCES scan_results (id) ON DELETE CASCADE,
  name        TEXT NOT NULL,
  type        TEXT NOT NULL,
  severity    TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT ''
);`,
	},
	{
		Name: "create_index_threat_details_scan",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_threat_details_scan ON threat_details (scan_id);`,
	},
	{
		Name: "create_table_audit_logs",
		SQL: `CREATE TABLE IF NOT EXISTS audit_logs (
  id            TEXT        PRIMARY KEY,
  document_id   TEXT        REFERENCES documents (id) ON DELETE SET NULL,
  action        TEXT        NOT NULL,
  user_id       TEXT        NOT NULL,
  tenant_id     TEXT        NOT NULL,
  request_id    TEXT        NOT NULL DEFAULT '',
  status        TEXT        NOT NULL,
  error_message TEXT        NOT NULL DEFAULT '',
  context       JSONB,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_audit_logs_document",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_logs_document ON audit_logs (document_id, created_at DESC);`,
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs the schema
// steps if it doesn't. Steps are idempotent so a partially applied schema is
// completed on the next start.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	start := time.Now()

	var exists bool
	const sentinel = "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, sentinel).Scan(&exists); err != nil {
		logger.Error("migration sentinel check failed", zap.Error(err))
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logger.Info("schema already exists, skipping migration",
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		return nil
	}

	logger.Info("running database migration", zap.Int("steps", len(steps)))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			logger.Error("migration step failed",
				zap.String("migration_step", step.Name),
				zap.Error(err))
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		logger.Info("migration step applied",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()))
	}

	logger.Info("database migration complete",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
