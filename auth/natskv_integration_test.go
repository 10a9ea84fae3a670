//go:build integration

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sania-talib/api-gateway-project/natsclient"
)

func newKeyStore(t *testing.T) (*NATSKeyStore, *natsclient.KVStore) {
	t.Helper()

	testClient := natsclient.NewTestClient(t, natsclient.WithKV())
	ctx := context.Background()

	bucket, err := testClient.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "api-keys-test",
		Description: "Test bucket for key records",
	})
	require.NoError(t, err)

	kv := testClient.Client.NewKVStore(bucket)
	return NewNATSKeyStore(kv), kv
}

func TestNATSKeyStore_ProvisionAndLookup(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	rec := KeyRecord{
		Key:       "client-alpha",
		Owner:     "alpha-team",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Provision(ctx, rec))

	active, err := store.IsActive(ctx, "client-alpha")
	require.NoError(t, err)
	assert.True(t, active)

	// Unknown key is a verdict, not an error.
	active, err = store.IsActive(ctx, "client-unknown")
	require.NoError(t, err)
	assert.False(t, active)

	// Provisioning the same key twice conflicts.
	err = store.Provision(ctx, rec)
	assert.Error(t, err)
}

func TestNATSKeyStore_Revoke(t *testing.T) {
	store, kv := newKeyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Provision(ctx, KeyRecord{
		Key:       "client-beta",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))

	revokedAt := time.Now().UTC()
	require.NoError(t, store.Revoke(ctx, "client-beta", revokedAt))

	active, err := store.IsActive(ctx, "client-beta")
	require.NoError(t, err)
	assert.False(t, active, "revoked key should be inactive")

	// The CAS update preserved the rest of the record.
	entry, err := kv.Get(ctx, "client-beta")
	require.NoError(t, err)
	assert.Contains(t, string(entry.Value), "revoked_at")

	// Revoking an unknown key must not create a record.
	err = store.Revoke(ctx, "client-ghost", time.Now())
	assert.Error(t, err)

	_, err = kv.Get(ctx, "client-ghost")
	assert.True(t, natsclient.IsKVNotFoundError(err), "revoke must not create the key")
}

func TestNATSKeyStore_WatchInvalidatesCache(t *testing.T) {
	store, _ := newKeyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Provision(ctx, KeyRecord{
		Key:       "client-gamma",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))

	cached, err := NewCachedStore(ctx, store, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })

	watchCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- store.WatchInvalidate(watchCtx, cached)
	}()

	// Warm the cache with the active verdict.
	active, err := cached.IsActive(ctx, "client-gamma")
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, store.Revoke(ctx, "client-gamma", time.Now().UTC()))

	// The watcher should drop the stale verdict well before the 1h TTL.
	assert.Eventually(t, func() bool {
		active, err := cached.IsActive(ctx, "client-gamma")
		return err == nil && !active
	}, 5*time.Second, 50*time.Millisecond, "revocation never reached the cache")

	cancel()
	select {
	case err := <-watchDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}
