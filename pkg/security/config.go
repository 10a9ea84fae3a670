// Package security defines the TLS configuration types shared by the
// gateway listeners and the upstream HTTP client. The config package
// embeds Config as its security section; pkg/tlsutil turns these types
// into tls.Config values.
package security

// Config is the root security section.
type Config struct {
	TLS TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig covers both directions: Server for the public and metrics
// listeners, Client for calls to http-type upstreams.
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty" yaml:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty" yaml:"client,omitempty"`
}

// ACMEConfig drives automated certificate issuance and renewal, for
// listener certificates and client identities alike.
type ACMEConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	DirectoryURL  string   `json:"directory_url,omitempty" yaml:"directory_url,omitempty"`   // ACME directory endpoint
	Email         string   `json:"email,omitempty" yaml:"email,omitempty"`                   // registration contact
	Domains       []string `json:"domains,omitempty" yaml:"domains,omitempty"`               // certificate SANs
	ChallengeType string   `json:"challenge_type,omitempty" yaml:"challenge_type,omitempty"` // "http-01" or "tls-alpn-01"
	RenewBefore   string   `json:"renew_before,omitempty" yaml:"renew_before,omitempty"`     // duration before expiry, e.g. "8h"
	StoragePath   string   `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`     // where issued material lands
	CABundle      string   `json:"ca_bundle,omitempty" yaml:"ca_bundle,omitempty"`           // trust anchor for a private directory
}

// ServerMTLSConfig controls client certificate validation on a listener.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty" yaml:"client_ca_files,omitempty"`         // CAs trusted to sign client certs
	RequireClientCert bool     `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"` // false leaves the cert optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty" yaml:"allowed_client_cns,omitempty"`   // empty admits any validated CN
}

// ServerTLSConfig configures TLS on a listener. Mode selects where the
// certificate comes from: "manual" (the default) reads CertFile/KeyFile,
// "acme" obtains and renews through the ACME section.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Mode       string `json:"mode,omitempty" yaml:"mode,omitempty"`
	CertFile   string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"` // "1.2" (default) or "1.3"

	ACME ACMEConfig       `json:"acme,omitempty" yaml:"acme,omitempty"`
	MTLS ServerMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"` // applies in either mode
}

// ClientMTLSConfig names the certificate a client presents when an
// upstream demands one.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
}

// ClientTLSConfig configures outbound TLS. The system CA bundle is always
// trusted; CAFiles add private roots on top of it.
type ClientTLSConfig struct {
	Mode    string   `json:"mode,omitempty" yaml:"mode,omitempty"` // "manual" (default) or "acme"
	CAFiles []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	// InsecureSkipVerify disables server certificate verification.
	// Local development only.
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	MinVersion         string `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	ACME ACMEConfig       `json:"acme,omitempty" yaml:"acme,omitempty"`
	MTLS ClientMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}
