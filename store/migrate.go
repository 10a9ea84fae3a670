package store

import (
	"context"

	"github.com/sania-talib/api-gateway-project/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		api_key TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS api_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		http_method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		response_time_ms INTEGER NOT NULL,
		is_error INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_endpoint ON api_logs(endpoint, http_method);`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_timestamp ON api_logs(timestamp);`,
}

// Migrate ensures the required tables and indexes exist. Statements are
// idempotent, so running it on every boot is safe.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.ErrNotStarted
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return errors.WrapFatal(err, "store.Store", "Migrate", "apply schema")
		}
	}
	return nil
}
