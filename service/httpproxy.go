package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
)

// maxUpstreamResponse caps how much of an upstream body is read: 4 MiB.
const maxUpstreamResponse = 4 << 20

// hopByHopHeaders never travel past one hop and are dropped when
// forwarding.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Host":                true,
}

// HTTPProxy forwards requests to an upstream HTTP service. The inbound
// path is appended to the base URL unchanged, so upstreams see the same
// paths the gateway does.
type HTTPProxy struct {
	base   *url.URL
	client *http.Client
	// timeout bounds one upstream exchange. Zero leaves the bound to the
	// caller's context.
	timeout time.Duration
}

// NewHTTPProxy creates a handler forwarding to baseURL. client carries
// the outbound TLS setup and connection pool; nil gets a plain client.
func NewHTTPProxy(baseURL string, client *http.Client, timeout time.Duration) (*HTTPProxy, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("base URL %q is not an absolute http(s) URL", baseURL),
			"service.HTTPProxy", "NewHTTPProxy", "parse base URL")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProxy{base: base, client: client, timeout: timeout}, nil
}

// Invoke re-issues the request upstream and decodes the JSON answer.
// The upstream's status code passes through as the handler status, so
// upstream 4xx/5xx arrive as payloads rather than handler errors.
// Unreachable upstreams come back transient; non-JSON answers invalid.
func (h *HTTPProxy) Invoke(ctx context.Context, headers map[string]string, body any) (any, int, error) {
	route, _ := RouteFromContext(ctx)
	method := route.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, errors.WrapInvalid(
				fmt.Errorf("failed to encode request for %s: %w", h.base.Host, err),
				"service.HTTPProxy", "Invoke", "encode request")
		}
		reqBody = bytes.NewReader(data)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, h.base.JoinPath(route.Path).String(), reqBody)
	if err != nil {
		return nil, 0, errors.WrapInvalid(
			fmt.Errorf("failed to build request for %s: %w", h.base.Host, err),
			"service.HTTPProxy", "Invoke", "build request")
	}
	for k, v := range headers {
		if !hopByHopHeaders[http.CanonicalHeaderKey(k)] {
			req.Header.Set(k, v)
		}
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, errors.WrapTransient(
			fmt.Errorf("request to %s failed: %w", h.base.Host, err),
			"service.HTTPProxy", "Invoke", "upstream request")
	}
	defer resp.Body.Close() //nolint:errcheck // nothing useful to do with a close error

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponse))
	if err != nil {
		return nil, 0, errors.WrapTransient(
			fmt.Errorf("reading reply from %s failed: %w", h.base.Host, err),
			"service.HTTPProxy", "Invoke", "read reply")
	}

	if len(raw) == 0 {
		return nil, resp.StatusCode, nil
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, 0, errors.WrapInvalid(
			fmt.Errorf("malformed reply from %s: %w", h.base.Host, err),
			"service.HTTPProxy", "Invoke", "decode reply")
	}
	return payload, resp.StatusCode, nil
}
