package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/logger"
)

// Manager handles the session lifecycle for one session type: cookie
// load/save, rolling expiry, authentication, and the logout token index.
//
// The store handle is injected explicitly; there is no package-level client.
type Manager struct {
	sessionType Type
	store       Store
	cookies     *cookie.Manager
	cfg         Config
	log         *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for session diagnostics.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a session manager for the given session type.
func NewManager(t Type, store Store, cookies *cookie.Manager, cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessionType: t,
		store:       store,
		cookies:     cookies,
		cfg:         cfg,
		log:         logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionType returns the session type this manager serves.
func (m *Manager) SessionType() Type { return m.sessionType }

// TTL returns the configured rolling session timeout.
func (m *Manager) TTL() time.Duration { return m.cfg.TTL }

// Load resolves the request's session from the signed cookie and the store.
// A missing or invalid cookie yields a fresh anonymous session, never an
// error: unauthenticated is a state, not a failure.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.cookies.GetSigned(r, m.sessionType.CookieName())
	if err != nil {
		return New(m.sessionType, m.cfg.TTL)
	}

	sess, err := m.store.Get(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
			m.log.WarnContext(ctx, "session load failed, starting anonymous session",
				logger.Component("session"),
				logger.SessionType(string(m.sessionType)),
				logger.Error(err))
		}
		return New(m.sessionType, m.cfg.TTL)
	}

	if sess.IsExpired() {
		return New(m.sessionType, m.cfg.TTL)
	}

	sess.markPersisted()
	return sess, nil
}

// Save persists the session and refreshes the rolling cookie expiry.
//
// Anonymous sessions that were never stored and never modified are skipped
// entirely, so plain unauthenticated traffic creates no store records and
// no cookies. Persisted sessions are touched on every save, which is what
// makes the expiry rolling.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.IsDestroyed() {
		if err := m.store.Delete(ctx, sess.Token); err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Join(ErrDeleteSession, err)
		}
		m.deleteCookie(w)
		return nil
	}

	if sess.IsPersisted() {
		sess.Touch(m.cfg.TTL)
	} else if !sess.IsModified() {
		return nil
	}

	if err := m.store.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return errors.Join(ErrSaveSession, err)
	}
	sess.markPersisted()

	return m.setCookie(w, sess)
}

// Authenticate rotates the session token, binds the user, and persists the
// result. The old session record, if any, is removed so the rotated-out
// token stops working immediately.
func (m *Manager) Authenticate(ctx context.Context, w http.ResponseWriter, sess *Session, user *User) error {
	if sess.IsPersisted() {
		if err := m.store.Delete(ctx, sess.Token); err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Join(ErrDeleteSession, err)
		}
	}

	if err := sess.Authenticate(user); err != nil {
		return err
	}
	sess.Touch(m.cfg.TTL)

	if err := m.store.Save(ctx, sess, time.Until(sess.ExpiresAt)); err != nil {
		return errors.Join(ErrSaveSession, err)
	}
	sess.markPersisted()

	return m.setCookie(w, sess)
}

// Logout destroys the session, its logout token shadow, and the cookie.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.LogoutToken != nil && sess.LogoutToken.Value != "" {
		if err := m.store.DeleteLogoutToken(ctx, sess.LogoutToken.Value); err != nil && !errors.Is(err, ErrNotFound) {
			m.log.WarnContext(ctx, "failed to delete logout token on logout",
				logger.Component("session"), logger.Error(err))
		}
	}

	sess.Destroy()
	return m.Save(ctx, w, sess)
}

func (m *Manager) setCookie(w http.ResponseWriter, sess *Session) error {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge <= 0 {
		return nil
	}
	return m.cookies.SetSigned(w, m.sessionType.CookieName(), sess.Token,
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(m.cfg.SecureCookies),
		cookie.WithSameSite(http.SameSiteLaxMode),
		cookie.WithMaxAge(maxAge),
	)
}

func (m *Manager) deleteCookie(w http.ResponseWriter) {
	m.cookies.Delete(w, m.sessionType.CookieName(),
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(m.cfg.SecureCookies),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
}
