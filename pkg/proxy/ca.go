package proxy

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrCANotLoaded is returned when a host certificate or the CA itself is
// requested before the CA has been loaded or generated.
var ErrCANotLoaded = errors.New("CA certificate not loaded")

const (
	// DefaultCAOrganization names the CA in the operator's trust store.
	DefaultCAOrganization = "apicap Local CA"
	// CAValidity is how long a generated CA stays valid.
	CAValidity = 10 * 365 * 24 * time.Hour
	// HostCertValidity is how long a minted leaf certificate stays valid.
	HostCertValidity = 365 * 24 * time.Hour
	// DefaultKeyBits is the RSA key size for the CA and leaf certificates.
	DefaultKeyBits = 2048

	caCertFile = "ca.crt"
	caKeyFile  = "ca.key"
)

// CertPair holds a certificate and its private key.
type CertPair struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// TLSCertificate converts the pair for use in a tls.Config.
func (c *CertPair) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.Cert.Raw},
		PrivateKey:  c.Key,
		Leaf:        c.Cert,
	}
}

// CAManager owns the local CA used for HTTPS interception and mints a leaf
// certificate per intercepted host.
type CAManager struct {
	certPath string
	keyPath  string

	mu sync.RWMutex
	ca *CertPair

	certCache *certLRUCache
}

// CAManagerOption configures a CAManager.
type CAManagerOption func(*CAManager)

// WithCertCacheSize sets how many leaf certificates are kept in memory.
func WithCertCacheSize(size int) CAManagerOption {
	return func(m *CAManager) {
		m.certCache = newCertLRUCache(size)
	}
}

// NewCAManager creates a CA manager backed by the given PEM files. Nothing is
// read until Load, Generate or EnsureCA is called.
func NewCAManager(certPath, keyPath string, opts ...CAManagerOption) *CAManager {
	m := &CAManager{
		certPath:  certPath,
		keyPath:   keyPath,
		certCache: newCertLRUCache(DefaultCertCacheSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewCAManagerInDir creates a CA manager for ca.crt and ca.key inside dir.
func NewCAManagerInDir(dir string, opts ...CAManagerOption) *CAManager {
	return NewCAManager(filepath.Join(dir, caCertFile), filepath.Join(dir, caKeyFile), opts...)
}

// CertPath returns the path to the CA certificate file.
func (m *CAManager) CertPath() string { return m.certPath }

// KeyPath returns the path to the CA private key file.
func (m *CAManager) KeyPath() string { return m.keyPath }

// Exists reports whether both CA files are present on disk.
func (m *CAManager) Exists() bool {
	_, certErr := os.Stat(m.certPath)
	_, keyErr := os.Stat(m.keyPath)
	return certErr == nil && keyErr == nil
}

// EnsureCA loads the CA from disk, generating it first if it is missing.
func (m *CAManager) EnsureCA() error {
	if m.Exists() {
		return m.Load()
	}
	return m.Generate()
}

// Generate creates a new self-signed CA, writes it to disk and makes it the
// active CA. Previously minted leaf certificates are dropped.
func (m *CAManager) Generate() error {
	key, err := rsa.GenerateKey(rand.Reader, DefaultKeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate CA key: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{DefaultCAOrganization},
			CommonName:   DefaultCAOrganization,
		},
		NotBefore:             now,
		NotAfter:              now.Add(CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	cert, err := sign(template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create CA certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.certPath), 0o700); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}
	if err := writePEM(m.certPath, "CERTIFICATE", cert.Raw, 0o644); err != nil {
		return err
	}
	if err := writePEM(m.keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		return err
	}

	m.activate(&CertPair{Cert: cert, Key: key})
	return nil
}

// Load reads the CA certificate and key from disk and makes them active.
// A missing file yields an error matching fs.ErrNotExist.
func (m *CAManager) Load() error {
	certDER, err := readPEM(m.certPath, "CERTIFICATE")
	if err != nil {
		return err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("%s: %w", m.certPath, err)
	}

	keyDER, err := readPEM(m.keyPath, "RSA PRIVATE KEY", "PRIVATE KEY")
	if err != nil {
		return err
	}
	key, err := parseRSAKey(keyDER)
	if err != nil {
		return fmt.Errorf("%s: %w", m.keyPath, err)
	}

	m.activate(&CertPair{Cert: cert, Key: key})
	return nil
}

func (m *CAManager) activate(ca *CertPair) {
	m.mu.Lock()
	m.ca = ca
	m.certCache = newCertLRUCache(m.certCache.maxSize)
	m.mu.Unlock()
}

// GenerateHostCert returns a leaf certificate for host signed by the CA,
// minting one on first use. host may be a DNS name or an IP literal.
func (m *CAManager) GenerateHostCert(host string) (*CertPair, error) {
	m.mu.RLock()
	ca, cache := m.ca, m.certCache
	m.mu.RUnlock()

	if pair, ok := cache.get(host); ok {
		return pair, nil
	}
	if ca == nil {
		return nil, ErrCANotLoaded
	}

	// Minting is serialized so concurrent handshakes for one host share a cert.
	m.mu.Lock()
	defer m.mu.Unlock()
	if pair, ok := cache.get(host); ok {
		return pair, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, DefaultKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for %s: %w", host, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		Subject: pkix.Name{CommonName: host},
		// Clients with a slightly slow clock still accept the cert.
		NotBefore:   now.Add(-time.Hour),
		NotAfter:    now.Add(HostCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	cert, err := sign(template, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate for %s: %w", host, err)
	}

	pair := &CertPair{Cert: cert, Key: key}
	cache.set(host, pair)
	return pair, nil
}

// CACertPEM returns the CA certificate in PEM format, ready to be imported
// into a trust store.
func (m *CAManager) CACertPEM() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ca == nil {
		return nil, ErrCANotLoaded
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.ca.Cert.Raw}), nil
}

// CertInfo summarizes the CA certificate.
type CertInfo struct {
	// Fingerprint is the colon-separated SHA-256 of the DER certificate,
	// as browsers show it.
	Fingerprint  string
	NotAfter     time.Time
	Organization string
}

// CertInfo returns a summary of the active CA certificate.
func (m *CAManager) CertInfo() (*CertInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ca == nil {
		return nil, ErrCANotLoaded
	}

	info := &CertInfo{NotAfter: m.ca.Cert.NotAfter}
	if orgs := m.ca.Cert.Subject.Organization; len(orgs) > 0 {
		info.Organization = orgs[0]
	}

	sum := sha256.Sum256(m.ca.Cert.Raw)
	hexBytes := make([]string, len(sum))
	for i, b := range sum {
		hexBytes[i] = fmt.Sprintf("%02X", b)
	}
	info.Fingerprint = strings.Join(hexBytes, ":")
	return info, nil
}

// sign issues template, filling in a random 128-bit serial number.
func sign(template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	template.SerialNumber = serial

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// readPEM returns the bytes of the first block in path whose type is one of
// types.
func readPEM(path string, types ...string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("%s: no %s PEM block", path, types[0])
		}
		for _, t := range types {
			if block.Type == t {
				return block.Bytes, nil
			}
		}
	}
}

// parseRSAKey accepts PKCS#1 keys as written by Generate and PKCS#8 keys as
// written by openssl.
func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("CA key is %T, want RSA", parsed)
	}
	return key, nil
}
