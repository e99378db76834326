package auth

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/edukita/apigw/internal/session"
)

// DevStrategy fakes an identity provider for local development and e2e
// tests. Instead of a SAML round trip it renders a form asking for an
// identifier, resolves the user from the backend dev directory, and feeds
// the result through the same resolver mapping the real strategy uses.
type DevStrategy struct {
	cfg          ProviderConfig
	resolver     UserResolver
	fieldLabel   string
	callbackPath string
}

// NewDevStrategy creates the development strategy for a provider.
// fieldLabel names the identifier asked for ("Social security number" for
// citizens, "External id" for employees); callbackPath is the absolute path
// the form posts to.
func NewDevStrategy(cfg ProviderConfig, resolver UserResolver, fieldLabel, callbackPath string) *DevStrategy {
	return &DevStrategy{
		cfg:          cfg,
		resolver:     resolver,
		fieldLabel:   fieldLabel,
		callbackPath: callbackPath,
	}
}

var devLoginForm = template.Must(template.New("devlogin").Parse(`<!DOCTYPE html>
<html>
<head><title>Dev login ({{.Provider}})</title></head>
<body>
<h1>Dev login: {{.Provider}}</h1>
<form action="{{.Action}}" method="post">
  <label>{{.Label}}: <input type="text" name="identifier" autofocus></label>
  <input type="hidden" name="RelayState" value="{{.RelayState}}">
  <button type="submit">Log in</button>
</form>
</body>
</html>`))

// InitiateLogin renders the dev login form.
func (s *DevStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, relayState string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return devLoginForm.Execute(w, map[string]string{
		"Provider":   s.cfg.Name,
		"Action":     s.callbackPath,
		"Label":      s.fieldLabel,
		"RelayState": relayState,
	})
}

// HandleLoginCallback resolves the posted identifier through the dev
// directory.
func (s *DevStrategy) HandleLoginCallback(w http.ResponseWriter, r *http.Request) (*session.User, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("auth: provider %q: parse dev login form: %w", s.cfg.Name, err)
	}

	identifier := r.Form.Get("identifier")
	if identifier == "" {
		return nil, fmt.Errorf("%w: dev login identifier", ErrMissingClaim)
	}

	return s.resolver.FromDevIdentifier(r.Context(), identifier)
}

// InitiateLogout never redirects: there is no provider to log out from.
func (s *DevStrategy) InitiateLogout(w http.ResponseWriter, r *http.Request, user *session.User, relayState string) (bool, error) {
	return false, nil
}

// ParseLogoutCallback treats any callback as a completed logout.
func (s *DevStrategy) ParseLogoutCallback(r *http.Request) (*LogoutEvent, error) {
	return &LogoutEvent{IsResponse: true}, nil
}

// CompleteLogout never responds: there is no provider waiting for one.
func (s *DevStrategy) CompleteLogout(w http.ResponseWriter, r *http.Request, event *LogoutEvent) (bool, error) {
	return false, nil
}
