package auth

import (
	"fmt"
	"strings"
)

// ProviderConfig configures one identity provider integration.
//
// In mock mode only Name and the redirect URLs matter. In real mode the
// SP keypair, IdP endpoints, and IdP certificate material are all required;
// a misconfigured provider fails fast at strategy construction.
type ProviderConfig struct {
	// Name is the short provider identifier used in routes and Redis key
	// prefixes ("ad", "evaka", "sfi", "evaka-customer").
	Name string

	// Mock enables the development strategy instead of real SAML.
	Mock bool `env:"MOCK" envDefault:"false"`

	// SP (this gateway) settings.
	EntityID    string `env:"ENTITY_ID"`
	CallbackURL string `env:"CALLBACK_URL"` // assertion consumer service URL

	SPCertPath string `env:"SP_CERT_PATH"`
	SPKeyPath  string `env:"SP_KEY_PATH"`

	// IdP settings. Either a metadata URL, or explicit endpoints plus
	// certificate material.
	IdPMetadataURL string `env:"IDP_METADATA_URL"`
	IdPEntityID    string `env:"IDP_ENTITY_ID"`
	IdPLoginURL    string `env:"IDP_LOGIN_URL"`
	IdPLogoutURL   string `env:"IDP_LOGOUT_URL"`

	// IdPCerts are IdP signing certificates: inline PEM, a path to a PEM
	// file, or a well-known name from the built-in certificate bundle.
	// Comma-separated to support IdP key rollover.
	IdPCerts string `env:"IDP_CERTS"`

	// SignatureAlgorithm for signing AuthnRequests: rsa-sha256 (default),
	// rsa-sha1, or rsa-sha512.
	SignatureAlgorithm string `env:"SIGNATURE_ALGORITHM" envDefault:"rsa-sha256"`
}

// Validate checks that a non-mock provider carries everything the SAML
// strategy needs.
func (c ProviderConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("auth: provider name is required")
	}
	if c.Mock {
		return nil
	}

	var missing []string
	if c.EntityID == "" {
		missing = append(missing, "entity id")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "callback url")
	}
	if c.SPCertPath == "" || c.SPKeyPath == "" {
		missing = append(missing, "sp keypair")
	}
	if c.IdPMetadataURL == "" {
		if c.IdPEntityID == "" || c.IdPLoginURL == "" {
			missing = append(missing, "idp endpoints")
		}
		if c.IdPCerts == "" {
			missing = append(missing, "idp certificates")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("auth: provider %q misconfigured, missing: %s", c.Name, strings.Join(missing, ", "))
	}
	return nil
}

// IdPCertList splits the comma-separated certificate references.
func (c ProviderConfig) IdPCertList() []string {
	if c.IdPCerts == "" {
		return nil
	}
	parts := strings.Split(c.IdPCerts, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
