package auth

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CertificateBundle resolves named IdP certificates from a directory of PEM
// files, so deployments can refer to well-known IdP certs ("saml-signing.idp.sfi.pem")
// instead of embedding them in the environment.
type CertificateBundle struct {
	dir string
}

// NewCertificateBundle creates a bundle rooted at dir. An empty dir disables
// name lookups; inline PEM and absolute paths still work.
func NewCertificateBundle(dir string) *CertificateBundle {
	return &CertificateBundle{dir: dir}
}

// Resolve loads a certificate from an inline PEM block, a file path, or a
// bundle name, in that order.
func (b *CertificateBundle) Resolve(ref string) (*x509.Certificate, error) {
	if strings.Contains(ref, "-----BEGIN") {
		return parseCertPEM([]byte(ref))
	}

	path := ref
	if !filepath.IsAbs(path) && b.dir != "" {
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(b.dir, ref)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read idp certificate %q: %w", ref, err)
	}
	return parseCertPEM(raw)
}

// ResolveAll resolves every certificate reference.
func (b *CertificateBundle) ResolveAll(refs []string) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(refs))
	for _, ref := range refs {
		cert, err := b.Resolve(ref)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func parseCertPEM(raw []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("auth: no PEM block in certificate data")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse certificate: %w", err)
	}
	return cert, nil
}

// loadSPKeyPair loads the service provider signing keypair from PEM files.
func loadSPKeyPair(certPath, keyPath string) (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: load sp keypair: %w", err)
	}

	cert := keyPair.Leaf
	if cert == nil {
		cert, err = x509.ParseCertificate(keyPair.Certificate[0])
		if err != nil {
			return nil, nil, fmt.Errorf("auth: parse sp certificate: %w", err)
		}
	}

	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("auth: sp private key is not RSA")
	}
	return key, cert, nil
}
