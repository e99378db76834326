package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// Type identifies which of the two cookie-based session flavors a session
// belongs to. Citizen and employee sessions use distinct cookie names and
// never mix.
type Type string

const (
	TypeCitizen  Type = "citizen"
	TypeEmployee Type = "employee"
)

// CookieName returns the session cookie name for this session type.
func (t Type) CookieName() string {
	if t == TypeEmployee {
		return "evaka.employee.session"
	}
	return "evaka.eugw.session"
}

// CSRFCookieName returns the CSRF double-submit cookie name for this type.
func (t Type) CSRFCookieName() string {
	if t == TypeEmployee {
		return "evaka.employee.xsrf"
	}
	return "evaka.eugw.xsrf"
}

// LogoutToken shadows a session in the store so a cookie-less SAML Single
// Logout request can still locate it. It must always expire strictly later
// than the session it belongs to.
type LogoutToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session is the server-side session document.
type Session struct {
	// Token is the opaque session identifier (32 bytes, base64url) carried
	// in the signed session cookie and used as the store key.
	Token string `json:"token"`

	Type Type `json:"type"`

	// User is nil for anonymous sessions.
	User *User `json:"user,omitempty"`

	LogoutToken *LogoutToken `json:"logoutToken,omitempty"`

	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// persisted is true once the session has been loaded from or written to
	// the store; only persisted or modified sessions are saved back.
	persisted bool
	modified  bool
	destroyed bool
}

// New creates a new anonymous, unsaved session of the given type.
func New(t Type, ttl time.Duration) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, errors.Join(ErrTokenGeneration, err)
	}

	now := time.Now()
	return &Session{
		Token:     token,
		Type:      t,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Authenticate binds a user to the session and rotates the session token to
// prevent fixation. The session becomes eligible for persistence.
func (s *Session) Authenticate(user *User) error {
	token, err := generateToken()
	if err != nil {
		return errors.Join(ErrTokenGeneration, err)
	}
	s.Token = token
	s.User = user
	s.UpdatedAt = time.Now()
	s.modified = true
	return nil
}

// Touch extends the session expiry. Rolling sessions call this on every
// request so active users are never logged out mid-use.
func (s *Session) Touch(ttl time.Duration) {
	s.ExpiresAt = time.Now().Add(ttl)
	s.UpdatedAt = time.Now()
	s.modified = true
}

// Destroy marks the session for deletion from the store and cookie.
func (s *Session) Destroy() {
	s.User = nil
	s.destroyed = true
	s.modified = true
}

// IsAuthenticated reports whether the session carries a user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil && !s.destroyed
}

// IsExpired reports whether the session expiry has passed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsModified reports whether the session has unsaved changes.
func (s *Session) IsModified() bool { return s.modified }

// IsDestroyed reports whether the session is marked for deletion.
func (s *Session) IsDestroyed() bool { return s.destroyed }

// IsPersisted reports whether the session exists in the store.
func (s *Session) IsPersisted() bool { return s.persisted }

func (s *Session) markPersisted() {
	s.persisted = true
	s.modified = false
}

func (s *Session) markModified() { s.modified = true }

// generateToken creates a cryptographically secure random token using
// 32 bytes (256 bits) encoded as base64 URL-safe string without padding.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
