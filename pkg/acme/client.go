// Package acme obtains and renews TLS certificates from an ACME
// directory (Let's Encrypt, step-ca) using the lego client library.
//
// Account credentials and issued certificates are kept as flat files
// under Config.StoragePath, so a restarted process reuses its ACME
// account and current certificate instead of re-registering. The
// tlsutil package layers the gateway's TLS policy on top of this
// client.
package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/challenge/tlsalpn01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/sania-talib/api-gateway-project/errors"
)

// File names under Config.StoragePath.
const (
	accountFileName    = "account.json"
	accountKeyFileName = "account.key"
	certFileName       = "certificate.pem"
	certKeyFileName    = "certificate.key"
)

// Config selects the ACME directory, the identity to register and
// where to persist account and certificate material.
type Config struct {
	DirectoryURL  string
	Email         string
	Domains       []string
	ChallengeType string
	RenewBefore   time.Duration
	StoragePath   string
	CABundle      string
}

// Validate checks the configuration and normalizes optional fields:
// an empty ChallengeType becomes "http-01" and a zero RenewBefore
// becomes 8 hours.
func (c *Config) Validate() error {
	if c.DirectoryURL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("directory_url is required"),
			"acme.Config", "Validate", "check directory URL")
	}
	if c.Email == "" {
		return errors.WrapInvalid(
			fmt.Errorf("email is required"),
			"acme.Config", "Validate", "check email")
	}
	if len(c.Domains) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("at least one domain is required"),
			"acme.Config", "Validate", "check domains")
	}
	switch c.ChallengeType {
	case "http-01", "tls-alpn-01":
	case "":
		c.ChallengeType = "http-01"
	default:
		return errors.WrapInvalid(
			fmt.Errorf("challenge_type must be 'http-01' or 'tls-alpn-01'"),
			"acme.Config", "Validate", "check challenge type")
	}
	if c.StoragePath == "" {
		return errors.WrapInvalid(
			fmt.Errorf("storage_path is required"),
			"acme.Config", "Validate", "check storage path")
	}
	if c.RenewBefore <= 0 {
		c.RenewBefore = 8 * time.Hour
	}
	return nil
}

// Account is the ACME account identity persisted across restarts.
// It implements lego's registration.User.
type Account struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

// GetEmail returns the account email address.
func (a *Account) GetEmail() string { return a.Email }

// GetRegistration returns the directory's registration resource, nil
// until the account has been registered.
func (a *Account) GetRegistration() *registration.Resource { return a.Registration }

// GetPrivateKey returns the account key.
func (a *Account) GetPrivateKey() crypto.PrivateKey { return a.key }

// Client drives certificate issuance and renewal against one ACME
// directory for a fixed set of domains.
type Client struct {
	config     Config
	legoClient *lego.Client
	account    *Account
	logger     *slog.Logger
}

// NewClient validates cfg, prepares the storage directory, loads or
// registers the ACME account and connects to the directory.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StoragePath, 0700); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "NewClient", "create storage directory")
	}

	client := &Client{
		config: cfg,
		logger: slog.Default(),
	}
	if err := client.loadOrCreateAccount(); err != nil {
		return nil, err
	}
	if err := client.initializeLegoClient(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) accountPaths() (accountFile, keyFile string) {
	return filepath.Join(c.config.StoragePath, accountFileName),
		filepath.Join(c.config.StoragePath, accountKeyFileName)
}

func (c *Client) certPaths() (certFile, keyFile string) {
	return filepath.Join(c.config.StoragePath, certFileName),
		filepath.Join(c.config.StoragePath, certKeyFileName)
}

// loadOrCreateAccount restores a stored account, or generates a fresh
// ECDSA key and persists it. Registration with the directory happens
// later in initializeLegoClient.
func (c *Client) loadOrCreateAccount() error {
	accountFile, keyFile := c.accountPaths()

	if _, err := os.Stat(accountFile); err == nil {
		account, err := loadAccount(accountFile, keyFile)
		if err != nil {
			return err
		}
		c.account = account
		return nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return errors.WrapFatal(err, "acme.Client", "loadOrCreateAccount", "generate account key")
	}
	c.account = &Account{
		Email: c.config.Email,
		key:   key,
	}
	return c.saveAccount()
}

func loadAccount(accountFile, keyFile string) (*Account, error) {
	data, err := os.ReadFile(accountFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "acme", "loadAccount", "read account file")
	}
	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, errors.WrapFatal(err, "acme", "loadAccount", "decode account file")
	}

	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "acme", "loadAccount", "read account key")
	}
	key, err := certcrypto.ParsePEMPrivateKey(keyData)
	if err != nil {
		return nil, errors.WrapFatal(err, "acme", "loadAccount", "parse account key")
	}
	account.key = key
	return &account, nil
}

// saveAccount writes the account and its key, both readable only by
// the owning process.
func (c *Client) saveAccount() error {
	accountFile, keyFile := c.accountPaths()

	data, err := json.MarshalIndent(c.account, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "encode account")
	}
	if err := os.WriteFile(accountFile, data, 0600); err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "write account file")
	}
	if err := os.WriteFile(keyFile, certcrypto.PEMEncode(c.account.key), 0600); err != nil {
		return errors.WrapFatal(err, "acme.Client", "saveAccount", "write account key")
	}
	return nil
}

// initializeLegoClient connects to the ACME directory, installs the
// configured challenge provider and registers the account on first
// use.
func (c *Client) initializeLegoClient() error {
	legoConfig := lego.NewConfig(c.account)
	legoConfig.CADirURL = c.config.DirectoryURL
	legoConfig.Certificate.KeyType = certcrypto.EC256

	// Private directories such as step-ca serve the ACME API under
	// their own root; trust it explicitly instead of the system pool.
	if c.config.CABundle != "" {
		caCert, err := os.ReadFile(c.config.CABundle)
		if err != nil {
			return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return errors.WrapFatal(
				fmt.Errorf("no certificates found in CA bundle %s", c.config.CABundle),
				"acme.Client", "initializeLegoClient", "parse CA bundle")
		}
		legoConfig.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		}
	}

	client, err := lego.NewClient(legoConfig)
	if err != nil {
		return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "create lego client")
	}

	switch c.config.ChallengeType {
	case "http-01":
		if err := client.Challenge.SetHTTP01Provider(http01.NewProviderServer("", "80")); err != nil {
			return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "set up HTTP-01 challenge")
		}
	case "tls-alpn-01":
		if err := client.Challenge.SetTLSALPN01Provider(tlsalpn01.NewProviderServer("", "443")); err != nil {
			return errors.WrapFatal(err, "acme.Client", "initializeLegoClient", "set up TLS-ALPN-01 challenge")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unsupported challenge type: %s", c.config.ChallengeType),
			"acme.Client", "initializeLegoClient", "set up challenge provider")
	}

	if c.account.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return errors.WrapTransient(err, "acme.Client", "initializeLegoClient", "register account")
		}
		c.account.Registration = reg
		if err := c.saveAccount(); err != nil {
			return err
		}
	}

	c.legoClient = client
	return nil
}

// storeCertificate persists a PEM pair under the storage path and
// returns it parsed. The key is written first: a missing certificate
// file reads as "nothing stored yet", while a certificate without its
// key reads as corruption.
func (c *Client) storeCertificate(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	certFile, keyFile := c.certPaths()

	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "storeCertificate", "write private key")
	}
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "storeCertificate", "write certificate")
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.WrapFatal(err, "acme.Client", "storeCertificate", "parse key pair")
	}
	return &tlsCert, nil
}

// ObtainCertificate requests a certificate for the configured domains
// and stores it for later renewal checks.
func (c *Client) ObtainCertificate(_ context.Context) (*tls.Certificate, error) {
	request := certificate.ObtainRequest{
		Domains: c.config.Domains,
		Bundle:  true,
	}
	certificates, err := c.legoClient.Certificate.Obtain(request)
	if err != nil {
		return nil, errors.WrapTransient(err, "acme.Client", "ObtainCertificate", "obtain certificate")
	}

	tlsCert, err := c.storeCertificate(certificates.Certificate, certificates.PrivateKey)
	if err != nil {
		return nil, err
	}
	return tlsCert, nil
}

// RenewCertificateIfNeeded loads the stored certificate and renews it
// once it is within RenewBefore of expiry. It returns the current
// certificate and whether a renewal happened. With nothing stored yet
// it returns (nil, false, nil) and the caller should obtain instead.
func (c *Client) RenewCertificateIfNeeded(_ context.Context) (*tls.Certificate, bool, error) {
	certFile, keyFile := c.certPaths()

	certPEM, err := os.ReadFile(certFile)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapFatal(err, "acme.Client", "RenewCertificateIfNeeded",
			"read stored certificate")
	}

	current, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, false, errors.WrapFatal(err, "acme.Client", "RenewCertificateIfNeeded",
			"load stored certificate")
	}
	leaf, err := x509.ParseCertificate(current.Certificate[0])
	if err != nil {
		return nil, false, errors.WrapFatal(err, "acme.Client", "RenewCertificateIfNeeded",
			"parse stored certificate")
	}

	if time.Now().Before(leaf.NotAfter.Add(-c.config.RenewBefore)) {
		return &current, false, nil
	}

	renewed, err := c.legoClient.Certificate.Renew(certificate.Resource{
		Domain:      c.config.Domains[0],
		Certificate: certPEM,
	}, true, false, "")
	if err != nil {
		return nil, false, errors.WrapTransient(err, "acme.Client", "RenewCertificateIfNeeded",
			"renew certificate")
	}

	tlsCert, err := c.storeCertificate(renewed.Certificate, renewed.PrivateKey)
	if err != nil {
		return nil, false, err
	}
	return tlsCert, true, nil
}

// StartRenewalLoop checks for renewal every checkInterval until ctx is
// cancelled, invoking onRenewal with each freshly issued certificate.
// Failed checks are logged and retried on the next tick.
func (c *Client) StartRenewalLoop(ctx context.Context, checkInterval time.Duration,
	onRenewal func(*tls.Certificate)) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cert, renewed, err := c.RenewCertificateIfNeeded(ctx)
			if err != nil {
				c.logger.Warn("certificate renewal check failed",
					"domains", c.config.Domains, "error", err)
				continue
			}
			if !renewed {
				continue
			}
			c.logger.Info("certificate renewed", "domains", c.config.Domains)
			if onRenewal != nil {
				onRenewal(cert)
			}
		}
	}
}
