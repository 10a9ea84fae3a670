package audit

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/natsclient"
)

// Defaults for the JetStream audit trail.
const (
	DefaultSubject = "gateway.audit.v1"
	DefaultStream  = "GATEWAY_AUDIT"
)

// NATSSink publishes JSON-encoded records to a JetStream subject so
// off-box consumers (SIEM, analytics pipelines) can follow the audit
// trail without touching the gateway's local store.
type NATSSink struct {
	client  *natsclient.Client
	subject string
}

// NewNATSSink builds a sink publishing to subject, falling back to
// DefaultSubject when empty.
func NewNATSSink(client *natsclient.Client, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{client: client, subject: subject}
}

// EnsureStream provisions the audit stream when absent. A stream that
// already exists under the same name is fine, even with someone else's
// retention settings.
func (s *NATSSink) EnsureStream(ctx context.Context) error {
	_, err := s.client.CreateStream(ctx, jetstream.StreamConfig{
		Name:      DefaultStream,
		Subjects:  []string{s.subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil && !stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return errors.WrapTransient(err, "audit.NATSSink", "EnsureStream", "create stream")
	}
	return nil
}

// Write publishes the record. Transport faults come back transient so the
// pump retries them.
func (s *NATSSink) Write(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "audit.NATSSink", "Write", "encode record")
	}

	if err := s.client.PublishToStream(ctx, s.subject, data); err != nil {
		return errors.WrapTransient(err, "audit.NATSSink", "Write", "publish record")
	}
	return nil
}
