package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
)

// Requester is the request/reply surface this package needs from
// natsclient.Client.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATS forwards requests to a backend service over NATS request/reply.
type NATS struct {
	nc      Requester
	subject string
	// timeout bounds one backend exchange. Zero leaves the bound to the
	// caller's context.
	timeout time.Duration
}

// NewNATS creates a handler that forwards to the given subject.
func NewNATS(nc Requester, subject string, timeout time.Duration) *NATS {
	return &NATS{nc: nc, subject: subject, timeout: timeout}
}

// natsRequest is the wire shape sent to backend subjects.
type natsRequest struct {
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body"`
	Path    string            `json:"path"`
	Method  string            `json:"method"`
}

// natsReply is the wire shape backends answer with. A zero status is
// read as 200.
type natsReply struct {
	Payload any `json:"payload"`
	Status  int `json:"status"`
}

// Invoke marshals the request, performs one request/reply exchange, and
// decodes the backend's answer. Transport failures come back transient;
// garbage replies come back invalid.
func (n *NATS) Invoke(ctx context.Context, headers map[string]string, body any) (any, int, error) {
	route, _ := RouteFromContext(ctx)

	data, err := json.Marshal(natsRequest{
		Headers: headers,
		Body:    body,
		Path:    route.Path,
		Method:  route.Method,
	})
	if err != nil {
		return nil, 0, errors.WrapInvalid(
			fmt.Errorf("failed to encode request for %s: %w", n.subject, err),
			"service.NATS", "Invoke", "encode request")
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	raw, err := n.nc.Request(ctx, n.subject, data)
	if err != nil {
		return nil, 0, errors.WrapTransient(
			fmt.Errorf("request to %s failed: %w", n.subject, err),
			"service.NATS", "Invoke", "backend request")
	}

	var reply natsReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, 0, errors.WrapInvalid(
			fmt.Errorf("malformed reply from %s: %w", n.subject, err),
			"service.NATS", "Invoke", "decode reply")
	}

	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	return reply.Payload, reply.Status, nil
}
