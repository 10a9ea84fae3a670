// Package natsclient carries the gateway's NATS traffic: request/reply
// dispatch to service backends, JetStream publishes for the audit trail,
// and the key-value bucket behind the API key store.
//
// A Client wraps one broker connection. Repeated failures open a
// connection-level circuit (default threshold 5) so callers get fast
// ErrCircuitOpen errors instead of queueing behind dial attempts; the
// circuit closes again after an exponentially growing backoff window.
//
// # Connecting
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("api-gateway"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// # Request/reply
//
// Service backends answer on their own subjects. The ctx deadline bounds
// the wait for a reply:
//
//	reply, err := client.Request(ctx, "svc.users", payload)
//
// # Audit stream
//
//	_, err := client.CreateStream(ctx, jetstream.StreamConfig{
//	    Name:     "GATEWAY_AUDIT",
//	    Subjects: []string{"gateway.audit.>"},
//	})
//	err = client.PublishToStream(ctx, "gateway.audit.v1", record)
//
// # API key records
//
// KVStore adds compare-and-swap semantics over a KV bucket. UpdateJSON
// re-reads and reapplies the mutation on revision conflicts, so two
// concurrent revocations of the same key both land:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "api_keys",
//	})
//	kv := client.NewKVStore(bucket)
//
//	err = kv.UpdateJSON(ctx, "key-alpha", func(rec map[string]any) error {
//	    rec["active"] = false
//	    return nil
//	})
//
// Lookups distinguish absence from failure with IsKVNotFoundError, which
// matters to callers that treat a missing key as a verdict rather than an
// error.
//
// # Testing
//
// NewTestClient starts a disposable NATS container (testcontainers) and
// returns a connected Client. Tests that need JetStream or KV opt in:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithKV())
//	bucket, _ := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "api_keys"})
package natsclient
