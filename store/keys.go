package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
)

// IsActive reports whether the key exists and is active. An absent or
// deactivated key is a verdict, not an error.
func (s *Store) IsActive(ctx context.Context, key string) (bool, error) {
	var active int
	row := s.DB.QueryRowContext(ctx,
		`SELECT is_active FROM api_keys WHERE api_key = ?`, key)
	if err := row.Scan(&active); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "store.Store", "IsActive", "query api key")
	}
	return active != 0, nil
}

// SeedKeys upserts the given keys as active. Existing keys are
// reactivated; their created_at is preserved.
func (s *Store) SeedKeys(ctx context.Context, keys []string) error {
	now := time.Now().UTC().Unix()
	for _, key := range keys {
		if key == "" {
			continue
		}
		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO api_keys (api_key, is_active, created_at)
			VALUES (?, 1, ?)
			ON CONFLICT(api_key) DO UPDATE SET is_active = 1
		`, key, now)
		if err != nil {
			return errors.WrapTransient(err, "store.Store", "SeedKeys", "upsert api key")
		}
	}
	s.logger.Debug("seeded api keys", "count", len(keys))
	return nil
}

// SetKeyActive flips the active flag on an existing key. Deactivating
// takes effect on the next lookup; no restart is required.
func (s *Store) SetKeyActive(ctx context.Context, key string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = ? WHERE api_key = ?`, flag, key)
	if err != nil {
		return errors.WrapTransient(err, "store.Store", "SetKeyActive", "update api key")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.WrapInvalid(sql.ErrNoRows, "store.Store", "SetKeyActive", "update api key")
	}
	return nil
}
