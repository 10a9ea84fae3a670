// Package transform reshapes requests and responses at the gateway trust boundary.
//
// Both functions are pure: callers' header and body maps are never mutated,
// and a fresh map is returned whenever a change is required. Status codes are
// never altered here, only payload shape.
package transform

import (
	"fmt"
	"strings"
	"time"
)

// Headers handled at the boundary.
const (
	HeaderAPIKey       = "X-API-Key"
	HeaderInternalAuth = "X-Internal-Auth"
	HeaderUserAgent    = "User-Agent"

	// DefaultUserAgent identifies the gateway to downstream services when
	// the client supplied no User-Agent of its own.
	DefaultUserAgent = "API-Gateway/1.0"

	// ProcessedBy is stamped into gateway_metadata on success envelopes.
	ProcessedBy = "api-gateway"

	internalTokenPrefix = "internal_token_for_"
)

// Payload fields written by the gateway.
const (
	fieldProcessedTimestamp = "gateway_processed_timestamp"
	fieldGatewayMetadata    = "gateway_metadata"
)

// Request prepares inbound headers and body for downstream dispatch:
//
//   - the API key header is stripped (any casing) so the raw credential
//     never crosses the trust boundary;
//   - when a key was present, a derived X-Internal-Auth credential is
//     injected in its place;
//   - a default User-Agent is added when the client sent none;
//   - structured bodies are stamped with the gateway processing time.
//
// Non-mapping bodies (nil, arrays, scalars) pass through unchanged.
func Request(headers map[string]string, body any, now time.Time) (map[string]string, any) {
	out := make(map[string]string, len(headers)+2)

	// Prefer the canonical casing when the client sent several variants.
	apiKey := headers[HeaderAPIKey]
	hasUserAgent := false

	for k, v := range headers {
		if strings.EqualFold(k, HeaderAPIKey) {
			if apiKey == "" {
				apiKey = v
			}
			continue
		}
		if strings.EqualFold(k, HeaderUserAgent) {
			hasUserAgent = true
		}
		out[k] = v
	}

	if apiKey != "" {
		out[HeaderInternalAuth] = internalTokenPrefix + apiKey
	}
	if !hasUserAgent {
		out[HeaderUserAgent] = DefaultUserAgent
	}

	transformed := body
	if m, ok := body.(map[string]any); ok {
		bodyCopy := make(map[string]any, len(m)+1)
		for k, v := range m {
			bodyCopy[k] = v
		}
		bodyCopy[fieldProcessedTimestamp] = now.UTC().Format(time.RFC3339)
		transformed = bodyCopy
	}

	return out, transformed
}

// Response normalizes an outbound payload before it reaches the client.
//
// Success payloads (2xx/3xx) that look like a recognized envelope (carry a
// "status" or "data" field) gain a gateway_metadata block; anything else
// passes through unannotated. Error payloads (>= 400) are normalized to a
// consistent shape: a "status":"error" field is ensured, a lone "error"
// field is renamed to "message", and a generic message naming the service is
// synthesized when neither exists. Already-normalized error payloads come
// back unchanged, so the function is idempotent.
func Response(service string, payload any, status int, now time.Time) any {
	m, ok := payload.(map[string]any)
	if !ok {
		return payload
	}

	switch {
	case status >= 200 && status < 400:
		_, hasStatus := m["status"]
		_, hasData := m["data"]
		if !hasStatus && !hasData {
			return payload
		}

		out := copyPayload(m)
		out[fieldGatewayMetadata] = map[string]any{
			"processed_by": ProcessedBy,
			"timestamp":    now.UTC().Format(time.RFC3339),
		}
		return out

	case status >= 400:
		out := copyPayload(m)
		if _, ok := out["status"]; !ok {
			out["status"] = "error"
		}
		if _, ok := out["message"]; !ok {
			if errVal, hasErr := out["error"]; hasErr {
				out["message"] = errVal
				delete(out, "error")
			}
		}
		if _, ok := out["message"]; !ok {
			out["message"] = fmt.Sprintf("An error occurred with %s service.", service)
		}
		return out
	}

	return payload
}

func copyPayload(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
