// Package store persists gateway state in libsql: the api_keys table
// backing authentication and the api_logs table receiving audit
// records. The same tables feed the analytics reporter.
//
// A Store satisfies both auth.KeyStore and audit.Sink, so one handle
// serves the whole write path. Open accepts local file DSNs,
// ":memory:", and remote libsql/Turso URLs with an optional auth token.
package store
