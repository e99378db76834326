package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/edukita/apigw/internal/session"
)

// LogoutEvent is a parsed Single Logout callback message.
type LogoutEvent struct {
	// NameID and SessionIndex identify the IdP session being terminated.
	// Only set for IdP-initiated LogoutRequests.
	NameID       string
	SessionIndex string

	// RequestID and RelayState echo the LogoutRequest so CompleteLogout can
	// answer it with a matching LogoutResponse.
	RequestID  string
	RelayState string

	// IsResponse marks a LogoutResponse completing an SP-initiated logout.
	IsResponse bool
}

// Strategy is one way of authenticating users against an identity provider.
// The real implementation speaks SAML 2.0; the development implementation
// fakes the provider and resolves users from the backend dev directory.
// Selection between the two is configuration, not inheritance.
type Strategy interface {
	// InitiateLogin starts the login flow, normally by redirecting the
	// browser to the identity provider.
	InitiateLogin(w http.ResponseWriter, r *http.Request, relayState string) error

	// HandleLoginCallback verifies the provider's callback and resolves the
	// canonical session user. A missing mandatory claim or failed
	// verification aborts authentication with an error.
	HandleLoginCallback(w http.ResponseWriter, r *http.Request) (*session.User, error)

	// InitiateLogout starts provider-side logout for the user. It reports
	// whether it already responded (redirected); when false the caller
	// finishes the logout locally.
	InitiateLogout(w http.ResponseWriter, r *http.Request, user *session.User, relayState string) (bool, error)

	// ParseLogoutCallback interprets an inbound Single Logout message.
	ParseLogoutCallback(r *http.Request) (*LogoutEvent, error)

	// CompleteLogout answers an IdP-initiated LogoutRequest after the local
	// session has been destroyed. It reports whether it already responded
	// (redirected back to the IdP); when false the caller finishes with its
	// own redirect.
	CompleteLogout(w http.ResponseWriter, r *http.Request, event *LogoutEvent) (bool, error)
}

// ReplayCache remembers single-use SAML message IDs. Implemented by
// redisstore.ReplayCache in production.
type ReplayCache interface {
	Remember(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
