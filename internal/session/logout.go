package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// logoutTokenMargin is the minimum amount of time a logout token must
// outlive its session. The session cookie expires client-side before the
// server-side record is cleaned up; the margin keeps the token resolvable
// for a Single Logout request arriving inside that window.
const logoutTokenMargin = 30 * time.Minute

// logoutTokenExtra is added on top of the session TTL when computing the
// logout token TTL, so the invariant above holds with room to spare.
const logoutTokenExtra = time.Hour

// LogoutTokenValue derives the logout token from the SAML correlation
// fields. A Single Logout request carries the same NameID and SessionIndex,
// so the incoming request can recompute the token and find the session
// without any cookie.
func LogoutTokenValue(nameID, sessionIndex string) string {
	sum := sha256.Sum256([]byte(nameID + "|" + sessionIndex))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SaveLogoutToken mints the session's logout token from its user's SAML
// fields and writes the index entry. Called once on a successful SAML login
// callback. No-op without a store, an authenticated user, or a NameID.
func (m *Manager) SaveLogoutToken(ctx context.Context, sess *Session) error {
	if m.store == nil || sess == nil || sess.User == nil || sess.User.NameID == "" {
		return nil
	}

	ttl := m.cfg.TTL + logoutTokenExtra
	sess.LogoutToken = &LogoutToken{
		Value:     LogoutTokenValue(sess.User.NameID, sess.User.SessionIndex),
		ExpiresAt: time.Now().Add(ttl),
	}
	sess.markModified()

	return m.store.SetLogoutToken(ctx, sess.LogoutToken.Value, sess.Token, ttl)
}

// RefreshLogoutToken extends the session's logout token when the rolling
// session expiry has caught up with it. It is a no-op when the session has
// no expiry or no logout token, or when the token already expires at least
// 30 minutes after the session does. Otherwise the token's expiry and store
// TTL are pushed out to session TTL + 60 minutes from now.
func (m *Manager) RefreshLogoutToken(ctx context.Context, sess *Session) error {
	if m.store == nil || sess == nil || sess.LogoutToken == nil || sess.LogoutToken.Value == "" {
		return nil
	}
	if sess.ExpiresAt.IsZero() {
		return nil
	}
	if sess.LogoutToken.ExpiresAt.Sub(sess.ExpiresAt) >= logoutTokenMargin {
		return nil
	}

	ttl := m.cfg.TTL + logoutTokenExtra
	sess.LogoutToken.ExpiresAt = time.Now().Add(ttl)
	sess.markModified()

	return m.store.SetLogoutToken(ctx, sess.LogoutToken.Value, sess.Token, ttl)
}

// ConsumeLogoutToken destroys the session a logout token points at, along
// with the token itself. Both deletes are best-effort and the whole
// operation is idempotent: a second call with the same token, or a token
// whose session is already gone, is a silent no-op.
func (m *Manager) ConsumeLogoutToken(ctx context.Context, logoutToken string) error {
	if m.store == nil || logoutToken == "" {
		return nil
	}

	sessionToken, err := m.store.GetSessionTokenByLogoutToken(ctx, logoutToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if err := m.store.Delete(ctx, sessionToken); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := m.store.DeleteLogoutToken(ctx, logoutToken); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// LogoutWithOnlyToken is ConsumeLogoutToken plus user extraction: it returns
// the user embedded in the raw stored session document so the Single Logout
// handler can report who was logged out. Returns (nil, nil) when the token
// resolves to nothing.
func (m *Manager) LogoutWithOnlyToken(ctx context.Context, logoutToken string) (*User, error) {
	if m.store == nil || logoutToken == "" {
		return nil, nil
	}

	sessionToken, err := m.store.GetSessionTokenByLogoutToken(ctx, logoutToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var user *User
	if raw, err := m.store.GetRaw(ctx, sessionToken); err == nil {
		var doc struct {
			User *User `json:"user"`
		}
		if err := json.Unmarshal(raw, &doc); err == nil {
			user = doc.User
		}
	}

	if err := m.store.Delete(ctx, sessionToken); err != nil && !errors.Is(err, ErrNotFound) {
		return user, err
	}
	if err := m.store.DeleteLogoutToken(ctx, logoutToken); err != nil && !errors.Is(err, ErrNotFound) {
		return user, err
	}
	return user, nil
}
