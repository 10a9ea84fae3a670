package gateway

// Request is one inbound call after transport decoding.
type Request struct {
	// Service is the routing key: the first path segment after /api/.
	Service string
	// Path is the full request path, kept for audit records and
	// backend forwarding.
	Path    string
	Method  string
	Headers map[string]string
	// Body is the decoded JSON payload, nil for bodyless methods.
	Body any
	// ClientKey identifies the rate-limit subject, typically the
	// source address. Never persisted.
	ClientKey string
	// APIKey is the caller's key from the X-API-Key header.
	APIKey string
}

// Response is the gateway's answer. Always well formed: whatever the
// pipeline hit, Payload is serializable and Status is a valid HTTP
// status code.
type Response struct {
	Payload any
	Status  int
}
