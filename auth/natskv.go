package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/natsclient"
)

// KeyRecord is the JSON document stored per API key in the KV bucket.
type KeyRecord struct {
	Key       string     `json:"key"`
	Owner     string     `json:"owner,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// NATSKeyStore keeps key records in a JetStream KV bucket so a fleet of
// gateway instances shares one credential source. Revocation uses CAS
// updates, so a concurrent provisioning write cannot resurrect a key.
type NATSKeyStore struct {
	kv *natsclient.KVStore
}

// NewNATSKeyStore wraps an existing KV store, typically built from the
// api_keys bucket.
func NewNATSKeyStore(kv *natsclient.KVStore) *NATSKeyStore {
	return &NATSKeyStore{kv: kv}
}

// IsActive looks up the key's record. A missing key is a verdict, not an
// error; transport faults come back transient so the gate fails closed
// and the processor counts an outage.
func (s *NATSKeyStore) IsActive(ctx context.Context, key string) (bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "auth.NATSKeyStore", "IsActive", "kv lookup")
	}

	var rec KeyRecord
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return false, errors.WrapInvalid(err, "auth.NATSKeyStore", "IsActive", "decode key record")
	}
	return rec.Active, nil
}

// Provision stores a new key record, failing if the key already exists.
func (s *NATSKeyStore) Provision(ctx context.Context, rec KeyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "auth.NATSKeyStore", "Provision", "encode key record")
	}

	if _, err := s.kv.Create(ctx, rec.Key, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(err, "auth.NATSKeyStore", "Provision", "create key record")
		}
		return errors.WrapTransient(err, "auth.NATSKeyStore", "Provision", "create key record")
	}
	return nil
}

// Revoke flips a key inactive with a CAS update and stamps the revocation
// time. Revoking an unknown key is an invalid-input error, never an
// implicit create.
func (s *NATSKeyStore) Revoke(ctx context.Context, key string, now time.Time) error {
	err := s.kv.UpdateJSON(ctx, key, func(current map[string]any) error {
		if len(current) == 0 {
			return natsclient.ErrKVKeyNotFound
		}
		current["active"] = false
		current["revoked_at"] = now.UTC().Format(time.RFC3339)
		return nil
	})
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(err, "auth.NATSKeyStore", "Revoke", "load key record")
		}
		return errors.WrapTransient(err, "auth.NATSKeyStore", "Revoke", "update key record")
	}
	return nil
}

// Invalidator drops a cached verdict for a key. CachedStore satisfies it.
type Invalidator interface {
	Invalidate(key string)
}

// WatchInvalidate follows the bucket and invalidates the cached verdict
// for every key that changes, so revocation takes effect at watch latency
// instead of cache TTL. Blocks until ctx is cancelled, returning nil. A
// watcher that drops while ctx is still live returns a transient error
// so the caller can re-establish it.
func (s *NATSKeyStore) WatchInvalidate(ctx context.Context, inv Invalidator) error {
	watcher, err := s.kv.Watch(ctx, ">")
	if err != nil {
		return errors.WrapTransient(err, "auth.NATSKeyStore", "WatchInvalidate", "create watcher")
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.WrapTransient(errors.ErrConnectionLost,
					"auth.NATSKeyStore", "WatchInvalidate", "consume updates")
			}
			// The watcher replays current state and marks the end of the
			// replay with a nil entry.
			if entry == nil {
				continue
			}
			inv.Invalidate(entry.Key())
		}
	}
}
