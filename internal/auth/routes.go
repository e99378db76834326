package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

// Handlers binds one authentication strategy to the session lifecycle and
// exposes the provider's HTTP routes. Login failures never leak provider
// internals to the browser: the user is redirected to the failure page and
// the details go to the log.
type Handlers struct {
	name       string
	strategy   Strategy
	sessions   *session.Manager
	successURL string
	failureURL string
	logoutURL  string
	log        *slog.Logger
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithHandlersLogger sets the logger used for auth flow diagnostics.
func WithHandlersLogger(log *slog.Logger) HandlersOption {
	return func(h *Handlers) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandlers creates the HTTP handlers for one provider. successURL,
// failureURL and logoutURL are the frontend pages the browser lands on after
// a successful login, a failed login, and a completed logout.
func NewHandlers(name string, strategy Strategy, sessions *session.Manager, successURL, failureURL, logoutURL string, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		name:       name,
		strategy:   strategy,
		sessions:   sessions,
		successURL: successURL,
		failureURL: failureURL,
		logoutURL:  logoutURL,
		log:        logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the provider's endpoints:
//
//	GET  /login            start the login flow
//	POST /login/callback   assertion consumer service
//	GET  /logout           start the logout flow
//	GET  /logout/callback  single logout service (redirect binding)
//	POST /logout/callback  single logout service (post binding)
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", h.login)
	r.Post("/login/callback", h.loginCallback)
	r.Get("/logout", h.logout)
	r.Get("/logout/callback", h.logoutCallback)
	r.Post("/logout/callback", h.logoutCallback)
	return r
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	relayState := sanitizeRelayState(r.URL.Query().Get("RelayState"), h.successURL)
	if err := h.strategy.InitiateLogin(w, r, relayState); err != nil {
		h.log.ErrorContext(r.Context(), "login initiation failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
		http.Redirect(w, r, h.failureURL, http.StatusFound)
	}
}

func (h *Handlers) loginCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.strategy.HandleLoginCallback(w, r)
	if err != nil {
		h.log.ErrorContext(ctx, "login callback failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	sess := session.FromContext(ctx)
	if sess == nil {
		sess, err = session.New(h.sessions.SessionType(), h.sessions.TTL())
		if err != nil {
			h.log.ErrorContext(ctx, "session creation failed",
				logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
			http.Redirect(w, r, h.failureURL, http.StatusFound)
			return
		}
	}

	if err := h.sessions.Authenticate(ctx, w, sess, user); err != nil {
		h.log.ErrorContext(ctx, "session authentication failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}
	if err := h.sessions.SaveLogoutToken(ctx, sess); err != nil {
		// Login still succeeds; only IdP-initiated logout degrades.
		h.log.WarnContext(ctx, "failed to save logout token",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
	}

	h.log.InfoContext(ctx, "user logged in",
		logger.Component("auth"), logger.Provider(h.name),
		logger.UserID(user.ID), logger.SessionType(string(h.sessions.SessionType())))

	target := sanitizeRelayState(r.FormValue("RelayState"), h.successURL)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess := session.FromContext(ctx)
	var user *session.User
	if sess != nil {
		user = sess.User
	}

	if err := h.sessions.Logout(ctx, w, sess); err != nil {
		h.log.WarnContext(ctx, "local logout failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
	}

	redirected, err := h.strategy.InitiateLogout(w, r, user, h.logoutURL)
	if err != nil {
		h.log.WarnContext(ctx, "provider logout initiation failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
	}
	if !redirected {
		http.Redirect(w, r, h.logoutURL, http.StatusFound)
	}
}

// logoutCallback serves the Single Logout endpoint. A LogoutResponse closes
// an SP-initiated logout; a LogoutRequest is IdP-initiated and terminates
// the session through the logout token index, since the request arrives
// straight from the IdP without any session cookie.
func (h *Handlers) logoutCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := h.strategy.ParseLogoutCallback(r)
	if err != nil {
		h.log.WarnContext(ctx, "logout callback rejected",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
		http.Redirect(w, r, h.logoutURL, http.StatusFound)
		return
	}

	if event.IsResponse {
		if sess := session.FromContext(ctx); sess != nil && sess.IsAuthenticated() {
			if err := h.sessions.Logout(ctx, w, sess); err != nil {
				h.log.WarnContext(ctx, "local logout failed",
					logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
			}
		}
		http.Redirect(w, r, h.logoutURL, http.StatusFound)
		return
	}

	token := session.LogoutTokenValue(event.NameID, event.SessionIndex)
	user, err := h.sessions.LogoutWithOnlyToken(ctx, token)
	if err != nil {
		h.log.WarnContext(ctx, "single logout failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
	} else if user != nil {
		h.log.InfoContext(ctx, "user logged out by identity provider",
			logger.Component("auth"), logger.Provider(h.name), logger.UserID(user.ID))
	}

	// The browser may still carry the session cookie of the session that
	// was just consumed; destroy it too when it is the same session.
	if sess := session.FromContext(ctx); sess != nil && sess.IsAuthenticated() {
		if sess.LogoutToken != nil && sess.LogoutToken.Value == token {
			if err := h.sessions.Logout(ctx, w, sess); err != nil {
				h.log.WarnContext(ctx, "local logout failed",
					logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
			}
		}
	}

	// Answer the IdP with a LogoutResponse so it can complete its logout
	// round; fall back to the local logout page when the strategy cannot.
	redirected, err := h.strategy.CompleteLogout(w, r, event)
	if err != nil {
		h.log.WarnContext(ctx, "logout response failed",
			logger.Component("auth"), logger.Provider(h.name), logger.Error(err))
	}
	if !redirected {
		http.Redirect(w, r, h.logoutURL, http.StatusFound)
	}
}

// sanitizeRelayState accepts only same-origin relative paths as post-login
// redirect targets. Anything else falls back to the default, closing the
// open-redirect hole that RelayState otherwise is.
func sanitizeRelayState(state, fallback string) string {
	if state == "" {
		return fallback
	}
	if !strings.HasPrefix(state, "/") || strings.HasPrefix(state, "//") || strings.Contains(state, "\\") {
		return fallback
	}
	return state
}
