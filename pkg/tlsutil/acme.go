package tlsutil

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/acme"
	"github.com/sania-talib/api-gateway-project/pkg/security"
)

// renewalCheckInterval is how often the background loop looks at the
// stored certificate's remaining lifetime.
const renewalCheckInterval = time.Hour

// LoadServerTLSConfigWithACME builds the listener TLS config with
// ACME-managed certificates when the mode asks for them, falling back
// to manual certificate files when the directory cannot serve. The
// returned stop function ends the renewal loop; it is non-nil whenever
// the error is nil.
func LoadServerTLSConfigWithACME(ctx context.Context, cfg security.ServerTLSConfig) (*tls.Config, func(), error) {
	if cfg.Mode != "acme" || !cfg.ACME.Enabled {
		tlsConfig, err := LoadServerTLSConfigWithMTLS(cfg, cfg.MTLS)
		return tlsConfig, func() {}, err
	}

	client, cert, err := acmeCertificate(ctx, cfg.ACME)
	if err != nil {
		// Manual certificate files keep the listener up while the
		// directory is unreachable.
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			tlsConfig, fbErr := LoadServerTLSConfigWithMTLS(cfg, cfg.MTLS)
			if fbErr != nil {
				return nil, nil, errors.WrapFatal(fbErr, "tlsutil", "LoadServerTLSConfigWithACME",
					"manual fallback")
			}
			return tlsConfig, func() {}, nil
		}
		return nil, nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}
	if cfg.MTLS.Enabled {
		if err := applyMTLSConfig(tlsConfig, cfg.MTLS); err != nil {
			return nil, nil, err
		}
	}

	return tlsConfig, watchRenewals(ctx, client, tlsConfig), nil
}

// LoadClientTLSConfigWithACME builds an outbound TLS config whose
// client certificate is ACME-managed when the mode asks for it. Manual
// mTLS certificate files are the fallback when the directory cannot
// serve.
func LoadClientTLSConfigWithACME(ctx context.Context, cfg security.ClientTLSConfig) (*tls.Config, func(), error) {
	if cfg.Mode != "acme" || !cfg.ACME.Enabled {
		tlsConfig, err := LoadClientTLSConfigWithMTLS(cfg, cfg.MTLS)
		return tlsConfig, func() {}, err
	}

	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	client, cert, err := acmeCertificate(ctx, cfg.ACME)
	if err != nil {
		if cfg.MTLS.Enabled && cfg.MTLS.CertFile != "" && cfg.MTLS.KeyFile != "" {
			fallback, fbErr := LoadClientTLSConfigWithMTLS(cfg, cfg.MTLS)
			if fbErr != nil {
				return nil, nil, errors.WrapFatal(fbErr, "tlsutil", "LoadClientTLSConfigWithACME",
					"manual fallback")
			}
			return fallback, func() {}, nil
		}
		return nil, nil, err
	}

	tlsConfig.Certificates = []tls.Certificate{*cert}
	return tlsConfig, watchRenewals(ctx, client, tlsConfig), nil
}

// acmeCertificate returns a ready certificate: the stored one when it
// still has life in it, renewed or freshly obtained otherwise.
func acmeCertificate(ctx context.Context, cfg security.ACMEConfig) (*acme.Client, *tls.Certificate, error) {
	client, err := newACMEClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	cert, _, err := client.RenewCertificateIfNeeded(ctx)
	if err == nil && cert != nil {
		return client, cert, nil
	}

	cert, err = client.ObtainCertificate(ctx)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "tlsutil", "acmeCertificate",
			"obtain certificate")
	}
	return client, cert, nil
}

// watchRenewals runs the renewal loop and swaps renewed certificates
// into tlsConfig. The returned stop function cancels the loop and waits
// for it to exit.
func watchRenewals(ctx context.Context, client *acme.Client, tlsConfig *tls.Config) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = client.StartRenewalLoop(ctx, renewalCheckInterval, func(cert *tls.Certificate) {
			tlsConfig.Certificates = []tls.Certificate{*cert}
		})
	}()

	return func() {
		cancel()
		<-done
	}
}

func newACMEClient(cfg security.ACMEConfig) (*acme.Client, error) {
	renewBefore, err := time.ParseDuration(cfg.RenewBefore)
	if err != nil {
		renewBefore = 8 * time.Hour
	}

	return acme.NewClient(acme.Config{
		DirectoryURL:  cfg.DirectoryURL,
		Email:         cfg.Email,
		Domains:       cfg.Domains,
		ChallengeType: cfg.ChallengeType,
		RenewBefore:   renewBefore,
		StoragePath:   cfg.StoragePath,
		CABundle:      cfg.CABundle,
	})
}
