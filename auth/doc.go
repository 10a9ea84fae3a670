// Package auth decides whether an API key may enter the pipeline.
//
// # Overview
//
// A Gate sits in front of a KeyStore. Empty keys are denied without a
// store lookup. Every other key is checked against the store, and a store
// failure denies the request (fail-closed) while surfacing the classified
// error so callers can count outages separately from bad credentials.
//
// # Key stores
//
// StaticKeys holds a fixed set in memory, seeded from configuration, for
// development and tests. The libSQL store (see the store package) backs
// production single-instance deployments. NATSKeyStore keeps key records
// as JSON documents in a JetStream KV bucket with CAS revocation, for
// fleets that share credential state. CachedStore wraps any of them with
// a TTL cache holding both positive and negative verdicts; store failures
// are never cached.
//
// # Revocation latency
//
// A cached verdict survives until its TTL or until invalidated. When the
// backing store is NATS KV, WatchInvalidate follows the bucket and drops
// cached verdicts as records change, cutting revocation latency from the
// cache TTL to the watch propagation delay.
package auth
