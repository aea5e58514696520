package controller

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bridgeagent/pkg/logging"
)

// Default identity file names inside the identity directory.
const (
	DefaultCertFile = "tls.crt"
	DefaultKeyFile  = "tls.key"
	DefaultCAFile   = "ca.crt"
)

// DefaultWatchInterval is the polling interval used when fsnotify is unavailable.
const DefaultWatchInterval = 30 * time.Second

// IdentityConfig locates the agent's client certificate.
type IdentityConfig struct {
	Dir      string
	CertFile string
	KeyFile  string
	CAFile   string

	WatchInterval time.Duration
}

func (c *IdentityConfig) applyDefaults() {
	if c.CertFile == "" {
		c.CertFile = DefaultCertFile
	}
	if c.KeyFile == "" {
		c.KeyFile = DefaultKeyFile
	}
	if c.CAFile == "" {
		c.CAFile = DefaultCAFile
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = DefaultWatchInterval
	}
}

// IdentityStatus describes the currently loaded certificate.
type IdentityStatus struct {
	Loaded     bool       `json:"loaded"`
	LastLoaded time.Time  `json:"last_loaded,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Identity holds the agent's TLS client certificate and CA pool and reloads
// them when the files change.
type Identity struct {
	mu sync.RWMutex

	config IdentityConfig
	cert   *tls.Certificate
	roots  *x509.CertPool
	status IdentityStatus
}

// LoadIdentity reads the certificate files once.
func LoadIdentity(config IdentityConfig) (*Identity, error) {
	config.applyDefaults()
	id := &Identity{config: config}
	if err := id.Reload(); err != nil {
		return nil, err
	}
	return id, nil
}

func (id *Identity) path(name string) string {
	return filepath.Join(id.config.Dir, name)
}

// Reload reads the certificate files again. On failure the previously loaded
// certificate stays in use.
func (id *Identity) Reload() error {
	cert, roots, err := id.read()

	id.mu.Lock()
	defer id.mu.Unlock()

	if err != nil {
		id.status.LastError = err.Error()
		return err
	}

	id.cert = cert
	id.roots = roots
	id.status.Loaded = true
	id.status.LastLoaded = time.Now()
	id.status.LastError = ""
	id.status.ExpiresAt = nil
	if len(cert.Certificate) > 0 {
		if parsed, parseErr := x509.ParseCertificate(cert.Certificate[0]); parseErr == nil {
			id.status.ExpiresAt = &parsed.NotAfter
		}
	}

	logging.Info(subsystem, "Loaded client certificate from %s", id.config.Dir)
	return nil
}

func (id *Identity) read() (*tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(id.path(id.config.CertFile), id.path(id.config.KeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(id.path(id.config.CAFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, nil, fmt.Errorf("failed to parse CA certificate %s", id.path(id.config.CAFile))
	}
	return &cert, roots, nil
}

// TLSConfig returns a client configuration that always presents the most
// recently loaded certificate.
func (id *Identity) TLSConfig() *tls.Config {
	id.mu.RLock()
	roots := id.roots
	id.mu.RUnlock()

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    roots,
		GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			id.mu.RLock()
			defer id.mu.RUnlock()
			if id.cert == nil {
				return nil, fmt.Errorf("no client certificate loaded")
			}
			return id.cert, nil
		},
	}
}

// Status returns the state of the loaded certificate.
func (id *Identity) Status() IdentityStatus {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.status
}

// ExpiresWithin reports whether the certificate expires within d.
func (id *Identity) ExpiresWithin(d time.Duration) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.status.ExpiresAt == nil {
		return false
	}
	return time.Until(*id.status.ExpiresAt) < d
}
