// Package tlsutil builds tls.Config values from the gateway security
// configuration: manual certificate files, optional mutual TLS, and
// ACME-managed certificates with background renewal.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/security"
)

// LoadServerTLSConfig builds the listener TLS config from certificate
// files. A disabled config returns nil with no error.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}, nil
}

// LoadClientTLSConfig builds an outbound TLS config. The system CA pool
// is always trusted; CAFiles add private CAs on top of it.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendCAFiles(rootCAs, cfg.CAFiles, "LoadClientTLSConfig"); err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		RootCAs:    rootCAs,
		// Set only from explicit configuration, never programmatically.
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

// LoadServerTLSConfigWithMTLS builds the listener TLS config and, when
// the mTLS section is enabled, layers client certificate validation on
// top of it.
func LoadServerTLSConfigWithMTLS(cfg security.ServerTLSConfig, mtlsCfg security.ServerMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadServerTLSConfig(cfg)
	if err != nil || !mtlsCfg.Enabled {
		return tlsConfig, err
	}

	if err := applyMTLSConfig(tlsConfig, mtlsCfg); err != nil {
		return nil, err
	}
	return tlsConfig, nil
}

// LoadClientTLSConfigWithMTLS builds an outbound TLS config and, when
// the mTLS section is enabled, attaches the client certificate to
// present during handshakes.
func LoadClientTLSConfigWithMTLS(cfg security.ClientTLSConfig, mtlsCfg security.ClientMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil || !mtlsCfg.Enabled {
		return tlsConfig, err
	}

	clientCert, err := tls.LoadX509KeyPair(mtlsCfg.CertFile, mtlsCfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfigWithMTLS",
			"load client certificate")
	}

	tlsConfig.Certificates = []tls.Certificate{clientCert}
	return tlsConfig, nil
}

func applyMTLSConfig(tlsConfig *tls.Config, mtlsCfg security.ServerMTLSConfig) error {
	clientCAs := x509.NewCertPool()
	if err := appendCAFiles(clientCAs, mtlsCfg.ClientCAFiles, "applyMTLSConfig"); err != nil {
		return err
	}

	tlsConfig.ClientCAs = clientCAs
	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, mtlsCfg.AllowedClientCNs)
		}
	}

	return nil
}

// verifyAllowedClientCN runs after chain validation, so the leaf of the
// first chain is the presented client certificate.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	cn := chains[0][0].Subject.CommonName
	for _, allowed := range allowedCNs {
		if cn == allowed {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN %q not in allowed list", cn)
}

// appendCAFiles reads each PEM file into pool. A file that yields no
// certificates is an error rather than a silently empty pool.
func appendCAFiles(pool *x509.CertPool, files []string, method string) error {
	for _, file := range files {
		caPEM, err := os.ReadFile(file)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method,
				fmt.Sprintf("read CA file %s", file))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(
				fmt.Errorf("no certificates found in %s", file),
				"tlsutil", method, "parse CA file")
		}
	}
	return nil
}

// parseTLSVersion maps a config version string to the crypto/tls
// constant. Anything unrecognized, including empty, means TLS 1.2.
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
