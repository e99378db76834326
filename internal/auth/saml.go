package auth

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

var (
	// ErrSAMLVerification wraps any failure to validate a SAML response.
	ErrSAMLVerification = errors.New("auth: SAML response verification failed")
	// ErrReplayedMessage is returned when a SAML message ID is seen twice.
	ErrReplayedMessage = errors.New("auth: SAML message replay detected")
)

// assertionReplayTTL bounds how long an assertion ID is remembered when the
// assertion itself carries no usable NotOnOrAfter condition.
const assertionReplayTTL = 15 * time.Minute

// requestIDCookieTTL bounds the window between issuing an AuthnRequest and
// receiving its response.
const requestIDCookieTTL = 5 * time.Minute

// SAMLStrategy is the real SAML 2.0 service provider strategy, built on
// crewjam/saml. One instance per identity provider.
type SAMLStrategy struct {
	sp       *saml.ServiceProvider
	cfg      ProviderConfig
	resolver UserResolver
	replay   ReplayCache
	cookies  *cookie.Manager
	secure   bool
	log      *slog.Logger
}

// NewSAMLStrategy constructs the service provider for one identity
// provider. Any missing required configuration fails here, not at login
// time.
func NewSAMLStrategy(ctx context.Context, cfg ProviderConfig, bundle *CertificateBundle, resolver UserResolver, replay ReplayCache, cookies *cookie.Manager, secure bool, log *slog.Logger) (*SAMLStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDiscard()
	}

	key, cert, err := loadSPKeyPair(cfg.SPCertPath, cfg.SPKeyPath)
	if err != nil {
		return nil, err
	}

	acsURL, err := url.Parse(cfg.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("auth: provider %q: invalid callback url: %w", cfg.Name, err)
	}

	idpMetadata, err := resolveIdPMetadata(ctx, cfg, bundle)
	if err != nil {
		return nil, err
	}

	sigMethod, err := signatureMethod(cfg.SignatureAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("auth: provider %q: %w", cfg.Name, err)
	}

	sp := &saml.ServiceProvider{
		EntityID:          cfg.EntityID,
		Key:               key,
		Certificate:       cert,
		AcsURL:            *acsURL,
		SloURL:            *acsURL,
		MetadataURL:       *acsURL,
		IDPMetadata:       idpMetadata,
		SignatureMethod:   sigMethod,
		AuthnNameIDFormat: saml.TransientNameIDFormat,
	}

	return &SAMLStrategy{
		sp:       sp,
		cfg:      cfg,
		resolver: resolver,
		replay:   replay,
		cookies:  cookies,
		secure:   secure,
		log:      log,
	}, nil
}

// resolveIdPMetadata fetches IdP metadata from the configured URL, or
// assembles an equivalent descriptor from explicit endpoints and
// certificates.
func resolveIdPMetadata(ctx context.Context, cfg ProviderConfig, bundle *CertificateBundle) (*saml.EntityDescriptor, error) {
	if cfg.IdPMetadataURL != "" {
		metaURL, err := url.Parse(cfg.IdPMetadataURL)
		if err != nil {
			return nil, fmt.Errorf("auth: provider %q: invalid idp metadata url: %w", cfg.Name, err)
		}
		metadata, err := samlsp.FetchMetadata(ctx, http.DefaultClient, *metaURL)
		if err != nil {
			return nil, fmt.Errorf("auth: provider %q: fetch idp metadata: %w", cfg.Name, err)
		}
		return metadata, nil
	}

	certs, err := bundle.ResolveAll(cfg.IdPCertList())
	if err != nil {
		return nil, err
	}

	keyDescriptors := make([]saml.KeyDescriptor, 0, len(certs))
	for _, cert := range certs {
		keyDescriptors = append(keyDescriptors, saml.KeyDescriptor{
			Use: "signing",
			KeyInfo: saml.KeyInfo{
				X509Data: saml.X509Data{
					X509Certificates: []saml.X509Certificate{
						{Data: base64.StdEncoding.EncodeToString(cert.Raw)},
					},
				},
			},
		})
	}

	descriptor := saml.IDPSSODescriptor{
		SSODescriptor: saml.SSODescriptor{
			RoleDescriptor: saml.RoleDescriptor{
				ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
				KeyDescriptors:             keyDescriptors,
			},
		},
		SingleSignOnServices: []saml.Endpoint{
			{Binding: saml.HTTPRedirectBinding, Location: cfg.IdPLoginURL},
			{Binding: saml.HTTPPostBinding, Location: cfg.IdPLoginURL},
		},
	}
	if cfg.IdPLogoutURL != "" {
		descriptor.SingleLogoutServices = []saml.Endpoint{
			{Binding: saml.HTTPRedirectBinding, Location: cfg.IdPLogoutURL},
		}
	}

	return &saml.EntityDescriptor{
		EntityID:          cfg.IdPEntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{descriptor},
	}, nil
}

func signatureMethod(name string) (string, error) {
	switch name {
	case "rsa-sha256", "":
		return dsig.RSASHA256SignatureMethod, nil
	case "rsa-sha1":
		return dsig.RSASHA1SignatureMethod, nil
	case "rsa-sha512":
		return dsig.RSASHA512SignatureMethod, nil
	}
	return "", fmt.Errorf("unsupported signature algorithm %q", name)
}

func (s *SAMLStrategy) requestIDCookie() string {
	return "evaka." + s.cfg.Name + ".reqid"
}

// InitiateLogin redirects the browser to the IdP with a signed
// AuthnRequest, remembering the request ID for InResponseTo validation.
func (s *SAMLStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, relayState string) error {
	binding := saml.HTTPRedirectBinding
	authReq, err := s.sp.MakeAuthenticationRequest(s.sp.GetSSOBindingLocation(binding), binding, saml.HTTPPostBinding)
	if err != nil {
		return fmt.Errorf("auth: provider %q: make authn request: %w", s.cfg.Name, err)
	}

	redirectURL, err := authReq.Redirect(relayState, s.sp)
	if err != nil {
		return fmt.Errorf("auth: provider %q: build redirect: %w", s.cfg.Name, err)
	}

	// The IdP delivers the response as a cross-site POST to the assertion
	// consumer service; browsers do not attach Lax cookies to cross-site
	// POSTs, so the request ID cookie must be SameSite=None to be present
	// for InResponseTo validation.
	if err := s.cookies.SetSigned(w, s.requestIDCookie(), authReq.ID,
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(s.secure),
		cookie.WithSameSite(http.SameSiteNoneMode),
		cookie.WithMaxAge(int(requestIDCookieTTL.Seconds())),
	); err != nil {
		return err
	}

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
	return nil
}

// HandleLoginCallback validates the SAML response at the assertion consumer
// service, rejects replays, and resolves the session user.
func (s *SAMLStrategy) HandleLoginCallback(w http.ResponseWriter, r *http.Request) (*session.User, error) {
	ctx := r.Context()

	var possibleRequestIDs []string
	if id, err := s.cookies.GetSigned(r, s.requestIDCookie()); err == nil && id != "" {
		possibleRequestIDs = append(possibleRequestIDs, id)
	}
	s.cookies.Delete(w, s.requestIDCookie())

	assertion, err := s.sp.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		// crewjam hides the real cause in InvalidResponseError.PrivateErr;
		// surface it to the log, never to the user.
		var ire *saml.InvalidResponseError
		if errors.As(err, &ire) {
			s.log.WarnContext(ctx, "SAML response rejected",
				logger.Component("auth"),
				logger.Provider(s.cfg.Name),
				logger.Error(ire.PrivateErr))
		} else {
			s.log.WarnContext(ctx, "SAML response rejected",
				logger.Component("auth"),
				logger.Provider(s.cfg.Name),
				logger.Error(err))
		}
		return nil, errors.Join(ErrSAMLVerification, err)
	}

	if assertion.ID != "" && s.replay != nil {
		ttl := assertionReplayTTL
		if until := time.Until(assertion.Conditions.NotOnOrAfter); until > 0 {
			ttl = until
		}
		fresh, err := s.replay.Remember(ctx, assertion.ID, ttl)
		if err != nil {
			return nil, fmt.Errorf("auth: provider %q: replay cache: %w", s.cfg.Name, err)
		}
		if !fresh {
			return nil, ErrReplayedMessage
		}
	}

	return s.resolver.FromAssertion(ctx, assertion)
}

// InitiateLogout redirects the browser to the IdP's Single Logout endpoint
// when the provider supports it and the user carries a NameID.
func (s *SAMLStrategy) InitiateLogout(w http.ResponseWriter, r *http.Request, user *session.User, relayState string) (bool, error) {
	if user == nil || user.NameID == "" {
		return false, nil
	}
	if s.sp.GetSLOBindingLocation(saml.HTTPRedirectBinding) == "" {
		return false, nil
	}

	logoutURL, err := s.sp.MakeRedirectLogoutRequest(user.NameID, relayState)
	if err != nil {
		return false, fmt.Errorf("auth: provider %q: make logout request: %w", s.cfg.Name, err)
	}

	http.Redirect(w, r, logoutURL.String(), http.StatusFound)
	return true, nil
}

// logoutRequestDoc is the minimal LogoutRequest shape needed to correlate
// an IdP-initiated Single Logout with a local session.
type logoutRequestDoc struct {
	XMLName     xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutRequest"`
	ID          string   `xml:"ID,attr"`
	Destination string   `xml:"Destination,attr"`
	Issuer      string   `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	NameID      struct {
		Value string `xml:",chardata"`
	} `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	SessionIndex string `xml:"SessionIndex"`
}

// ParseLogoutCallback decodes an inbound Single Logout message on either
// binding. LogoutRequests terminate sessions, so they are accepted only
// after their signature verifies against the IdP's signing certificates
// and their Issuer matches the IdP. LogoutResponses just complete an
// SP-initiated logout.
func (s *SAMLStrategy) ParseLogoutCallback(r *http.Request) (*LogoutEvent, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("auth: provider %q: parse logout callback: %w", s.cfg.Name, err)
	}
	redirectBinding := r.Method == http.MethodGet

	if encoded := r.Form.Get("SAMLResponse"); encoded != "" {
		return &LogoutEvent{IsResponse: true}, nil
	}

	encoded := r.Form.Get("SAMLRequest")
	if encoded == "" {
		return nil, fmt.Errorf("auth: provider %q: logout callback carries no SAML message", s.cfg.Name)
	}

	raw, err := decodeSAMLMessage(encoded, redirectBinding)
	if err != nil {
		return nil, fmt.Errorf("auth: provider %q: decode logout request: %w", s.cfg.Name, err)
	}

	// An unsolicited LogoutRequest destroys sessions, so it must prove it
	// came from the IdP before it is acted on.
	if redirectBinding {
		if err := s.verifyRedirectSignature(r); err != nil {
			return nil, errors.Join(ErrSAMLVerification,
				fmt.Errorf("auth: provider %q: logout request: %w", s.cfg.Name, err))
		}
	} else {
		raw, err = s.validateEnvelopedSignature(raw)
		if err != nil {
			return nil, errors.Join(ErrSAMLVerification,
				fmt.Errorf("auth: provider %q: logout request: %w", s.cfg.Name, err))
		}
	}

	var doc logoutRequestDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("auth: provider %q: unmarshal logout request: %w", s.cfg.Name, err)
	}

	if doc.Issuer != s.sp.IDPMetadata.EntityID {
		return nil, errors.Join(ErrSAMLVerification,
			fmt.Errorf("auth: provider %q: logout request issuer %q does not match the idp", s.cfg.Name, doc.Issuer))
	}
	if doc.Destination != "" && doc.Destination != s.sp.SloURL.String() {
		return nil, errors.Join(ErrSAMLVerification,
			fmt.Errorf("auth: provider %q: logout request destination %q does not match the slo endpoint", s.cfg.Name, doc.Destination))
	}

	if doc.ID != "" && s.replay != nil {
		fresh, err := s.replay.Remember(r.Context(), doc.ID, assertionReplayTTL)
		if err == nil && !fresh {
			return nil, ErrReplayedMessage
		}
	}

	return &LogoutEvent{
		NameID:       doc.NameID.Value,
		SessionIndex: doc.SessionIndex,
		RequestID:    doc.ID,
		RelayState:   r.Form.Get("RelayState"),
	}, nil
}

// CompleteLogout answers an IdP-initiated LogoutRequest with a
// LogoutResponse on the redirect binding, so the IdP can continue its
// logout round over the other session participants.
func (s *SAMLStrategy) CompleteLogout(w http.ResponseWriter, r *http.Request, event *LogoutEvent) (bool, error) {
	if event == nil || event.RequestID == "" {
		return false, nil
	}
	if s.sp.GetSLOBindingLocation(saml.HTTPRedirectBinding) == "" {
		return false, nil
	}

	responseURL, err := s.sp.MakeRedirectLogoutResponse(event.RequestID, event.RelayState)
	if err != nil {
		return false, fmt.Errorf("auth: provider %q: make logout response: %w", s.cfg.Name, err)
	}

	http.Redirect(w, r, responseURL.String(), http.StatusFound)
	return true, nil
}

// verifyRedirectSignature checks the query signature of a redirect-binding
// message. Per the SAML 2.0 bindings specification the signed octets are the
// still percent-encoded SAMLRequest, RelayState and SigAlg parameters, in
// that order, joined with '&'. Unsigned messages are rejected.
func (s *SAMLStrategy) verifyRedirectSignature(r *http.Request) error {
	sigAlg := r.URL.Query().Get("SigAlg")
	sigValue := r.URL.Query().Get("Signature")
	if sigAlg == "" || sigValue == "" {
		return errors.New("message is not signed")
	}

	var hash crypto.Hash
	switch sigAlg {
	case dsig.RSASHA256SignatureMethod:
		hash = crypto.SHA256
	case dsig.RSASHA1SignatureMethod:
		hash = crypto.SHA1
	case dsig.RSASHA512SignatureMethod:
		hash = crypto.SHA512
	default:
		return fmt.Errorf("unsupported signature algorithm %q", sigAlg)
	}

	signed, err := redirectSignedQuery(r.URL.RawQuery)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(sigValue)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	h := hash.New()
	h.Write([]byte(signed))
	digest := h.Sum(nil)

	certs := s.idpSigningCerts()
	if len(certs) == 0 {
		return errors.New("no idp signing certificates available")
	}
	for _, cert := range certs {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		if rsa.VerifyPKCS1v15(pub, hash, digest, sig) == nil {
			return nil
		}
	}
	return errors.New("signature does not match any idp certificate")
}

// redirectSignedQuery reassembles the signed portion of the query string
// from its raw form. The parameter values must stay in their original
// percent-encoding: re-encoding them can change the signed octets.
func redirectSignedQuery(rawQuery string) (string, error) {
	params := make(map[string]string)
	for _, kv := range strings.Split(rawQuery, "&") {
		name, value, _ := strings.Cut(kv, "=")
		params[name] = value
	}

	encoded, ok := params["SAMLRequest"]
	if !ok {
		return "", errors.New("no SAMLRequest parameter in query")
	}
	signed := "SAMLRequest=" + encoded
	if relayState, ok := params["RelayState"]; ok {
		signed += "&RelayState=" + relayState
	}
	return signed + "&SigAlg=" + params["SigAlg"], nil
}

// validateEnvelopedSignature checks the XML signature embedded in a
// POST-binding message and returns the validated document re-serialized, so
// later parsing cannot be steered by unsigned siblings of the signed
// element.
func (s *SAMLStrategy) validateEnvelopedSignature(raw []byte) ([]byte, error) {
	certs := s.idpSigningCerts()
	if len(certs) == 0 {
		return nil, errors.New("no idp signing certificates available")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("empty message")
	}

	vc := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: certs})
	validated, err := vc.Validate(doc.Root())
	if err != nil {
		return nil, fmt.Errorf("validate signature: %w", err)
	}

	out := etree.NewDocument()
	out.SetRoot(validated)
	return out.WriteToBytes()
}

// idpSigningCerts extracts the IdP's signing certificates from its metadata.
func (s *SAMLStrategy) idpSigningCerts() []*x509.Certificate {
	var certs []*x509.Certificate
	for _, role := range s.sp.IDPMetadata.IDPSSODescriptors {
		for _, kd := range role.KeyDescriptors {
			if kd.Use != "" && kd.Use != "signing" {
				continue
			}
			for _, xc := range kd.KeyInfo.X509Data.X509Certificates {
				der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(xc.Data), ""))
				if err != nil {
					continue
				}
				cert, err := x509.ParseCertificate(der)
				if err != nil {
					continue
				}
				certs = append(certs, cert)
			}
		}
	}
	return certs
}

// decodeSAMLMessage base64-decodes a SAML protocol message, additionally
// inflating it for the redirect binding.
func decodeSAMLMessage(encoded string, redirectBinding bool) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if !redirectBinding {
		return raw, nil
	}

	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(io.LimitReader(fr, 1<<20))
}
