package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/sania-talib/api-gateway-project/config"
	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/retry"
)

// Store wraps the gateway's libsql database: API keys on the write path,
// audit records on the read path of the analytics CLI.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
}

// Open connects to the configured database and verifies it answers.
// The ping retries briefly so a cold remote replica does not fail boot.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver != config.DriverLibSQL {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported store driver: %s", cfg.Driver),
			"store.Store", "Open", "select driver")
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, errors.WrapInvalid(err, "store.Store", "Open", "build DSN")
	}

	db, err := sql.Open(config.DriverLibSQL, dsn)
	if err != nil {
		return nil, errors.WrapFatal(err, "store.Store", "Open", "open database")
	}

	pingCfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	if err := retry.Do(ctx, pingCfg, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "store.Store", "Open", "ping database")
	}

	logger.Debug("store opened", "driver", cfg.Driver)
	return &Store{DB: db, logger: logger}, nil
}

// Ping verifies the database still answers. Health probes call this
// after startup so /health reflects current reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "store.Store", "Ping", "ping database")
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// buildDSN normalizes the configured DSN. Bare filesystem paths gain a
// file: scheme and their parent directory; remote libsql URLs gain the
// auth token when one is configured and the URL carries none.
func buildDSN(cfg config.StoreConfig) (string, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return "", fmt.Errorf("store DSN is required")
	}

	if dsn == ":memory:" {
		return dsn, nil
	}

	if strings.HasPrefix(dsn, "libsql:") || strings.HasPrefix(dsn, "http:") || strings.HasPrefix(dsn, "https:") {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	if strings.HasPrefix(dsn, "file:") {
		path, err := extractFilePath(dsn)
		if err != nil {
			return "", err
		}
		if err := ensureStoreDir(path); err != nil {
			return "", err
		}
		return dsn, nil
	}

	if err := ensureStoreDir(dsn); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(dsn), nil
}

func addAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store DSN: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store DSN: %w", err)
	}
	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}
	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
