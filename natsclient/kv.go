package natsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sania-talib/api-gateway-project/pkg/retry"
)

// Well-known KV errors. Callers match these with errors.Is.
var (
	ErrKVKeyNotFound        = errors.New("kv: key not found")
	ErrKVKeyExists          = errors.New("kv: key already exists")
	ErrKVRevisionMismatch   = errors.New("kv: revision mismatch (concurrent update)")
	ErrKVMaxRetriesExceeded = errors.New("kv: max retries exceeded")
)

// KVEntry is a value read from a bucket together with the revision needed
// for compare-and-swap writes.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions tunes per-operation behavior of a KVStore.
type KVOptions struct {
	MaxRetries            int           // CAS retries after the first attempt
	RetryDelay            time.Duration // initial pause between retries
	Timeout               time.Duration // per-operation deadline, 0 disables
	MaxValueSize          int           // reject writes larger than this, 0 disables
	UseExponentialBackoff bool
	MaxRetryDelay         time.Duration
}

// DefaultKVOptions suits buckets with concurrent writers, such as the API
// key bucket updated by provisioning and revocation at the same time.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries:            10,
		RetryDelay:            10 * time.Millisecond,
		Timeout:               5 * time.Second,
		MaxValueSize:          1024 * 1024,
		UseExponentialBackoff: true,
		MaxRetryDelay:         time.Second,
	}
}

// KVStore layers revision-aware operations over a JetStream KV bucket.
// The gateway stores one JSON record per API key in such a bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  Logger
}

// NewKVStore wraps bucket with the client's logger and the given option
// overrides.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

func (kv *KVStore) opTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get reads key and its current revision.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{
		Key:      key,
		Value:    entry.Value(),
		Revision: entry.Revision(),
	}, nil
}

// Put writes key unconditionally. The last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}

	kv.logger.Debugf("kv put %s rev=%d", key, rev)
	return rev, nil
}

// Create writes key only if it does not exist. An existing key returns
// ErrKVKeyExists.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}

	kv.logger.Debugf("kv create %s rev=%d", key, rev)
	return rev, nil
}

// Update writes key only if its current revision still matches revision.
// A stale revision returns ErrKVRevisionMismatch.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}

	kv.logger.Debugf("kv update %s rev %d -> %d", key, revision, rev)
	return rev, nil
}

// Delete removes key from the bucket.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return ErrKVKeyNotFound
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}

	kv.logger.Debugf("kv delete %s", key)
	return nil
}

// Watch opens a watcher for keys matching pattern. The operation timeout
// is not applied since the watcher outlives any single call.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}
	return watcher, nil
}

func (kv *KVStore) retryConfig() retry.Config {
	// MaxRetries counts attempts after the first, retry.Config counts
	// total attempts. Jitter de-syncs writers retrying the same key.
	multiplier := 1.0
	if kv.options.UseExponentialBackoff {
		multiplier = 2.0
	}
	return retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxRetryDelay,
		Multiplier:   multiplier,
		AddJitter:    true,
	}
}

// UpdateWithRetry runs a read-modify-write loop on key until a write lands
// without a revision conflict or the retry budget is spent. A missing key
// enters updateFn as nil and is created on write. Errors from updateFn and
// oversized values abort the loop immediately.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := kv.opTimeout(ctx)
	defer cancel()

	err := retry.Do(ctx, kv.retryConfig(), func() error {
		var current []byte
		var revision uint64

		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case IsKVNotFoundError(err):
			// Missing key: create below with nil current value.
		default:
			return fmt.Errorf("kv get during update: %w", err)
		}

		next, err := updateFn(current)
		if err != nil {
			// Caller logic fails the same way on every attempt.
			return retry.NonRetryable(fmt.Errorf("update function: %w", err))
		}

		if kv.options.MaxValueSize > 0 && len(next) > kv.options.MaxValueSize {
			return retry.NonRetryable(fmt.Errorf("value size %d exceeds limit %d",
				len(next), kv.options.MaxValueSize))
		}

		if revision == 0 {
			_, err = kv.bucket.Create(ctx, key, next)
		} else {
			_, err = kv.bucket.Update(ctx, key, next, revision)
		}
		if err == nil {
			return nil
		}
		if IsKVConflictError(err) {
			// Lost the write race. The next attempt re-reads the
			// winner's value.
			kv.logger.Debugf("kv conflict on %s, retrying", key)
			return err
		}
		return fmt.Errorf("kv write %s: %w", key, err)
	})

	if err != nil && IsKVConflictError(err) {
		return ErrKVMaxRetriesExceeded
	}
	return err
}

// UpdateJSON runs UpdateWithRetry treating the stored value as a JSON
// object. A missing key enters updateFn as an empty map.
func (kv *KVStore) UpdateJSON(ctx context.Context, key string,
	updateFn func(current map[string]any) error) error {

	return kv.UpdateWithRetry(ctx, key, func(currentBytes []byte) ([]byte, error) {
		var current map[string]any
		if len(currentBytes) > 0 {
			if err := json.Unmarshal(currentBytes, &current); err != nil {
				// Stored bytes are not JSON. Re-reading returns the same
				// bytes, so retrying cannot help.
				return nil, retry.NonRetryable(fmt.Errorf("decode stored value: %w", err))
			}
		} else {
			current = make(map[string]any)
		}

		if err := updateFn(current); err != nil {
			return nil, err
		}

		return json.Marshal(current)
	})
}

// NATS surfaces KV conditions as message strings and JetStream API codes
// rather than sentinel errors. 10037 is message-not-found, 10071 is a
// stream sequence mismatch, 10058 is key-exists on create.

// IsKVNotFoundError reports whether err means the key does not exist.
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVKeyNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}

// IsKVConflictError reports whether err means a CAS conflict, either a
// stale revision or a create against an existing key.
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVRevisionMismatch) || errors.Is(err, ErrKVKeyExists) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "wrong last sequence") ||
		strings.Contains(errMsg, "10071") ||
		strings.Contains(errMsg, "key exists") ||
		strings.Contains(errMsg, "10058")
}
