package cache

import (
	"github.com/sania-talib/api-gateway-project/errors"
)

// Cache is a generic key-value store. Entries leave through Delete,
// Clear, expiry or Close.
type Cache[V any] interface {
	// Get returns the value for key and whether a live entry was found.
	Get(key string) (V, bool)

	// Set stores value under key. It reports whether a new entry was
	// created, and an error when the key is invalid.
	Set(key string, value V) (bool, error)

	// Delete removes the entry for key and reports whether it existed.
	Delete(key string) (bool, error)

	// Clear removes every entry.
	Clear() error

	// Size returns the current entry count.
	Size() int

	// Keys lists the keys of entries that have not expired.
	Keys() []string

	// Stats returns the cache's statistics tracker.
	Stats() *Statistics

	// Close releases background resources. The cache must not be used
	// afterwards.
	Close() error
}

// EvictCallback receives the key and value of every entry removed by
// expiry, Delete or Clear.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
