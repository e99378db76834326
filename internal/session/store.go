package session

import (
	"context"
	"time"
)

// Store defines the persistence interface for sessions and their logout
// token index. Implementations must handle concurrent access safely; the
// gateway deliberately does not lock around session writes, so last write
// wins.
type Store interface {
	// Get returns the session stored under the token, or ErrNotFound.
	Get(ctx context.Context, token string) (*Session, error)

	// GetRaw returns the raw stored session document. Used by the Single
	// Logout path to extract the user from a session without going through
	// expiry validation.
	GetRaw(ctx context.Context, token string) ([]byte, error)

	// Save persists the session under its token with the given TTL.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, token string) error

	// SetLogoutToken stores sessionToken under the logout token with its own TTL.
	SetLogoutToken(ctx context.Context, logoutToken, sessionToken string, ttl time.Duration) error

	// GetSessionTokenByLogoutToken resolves a logout token to a session
	// token, or returns ErrNotFound.
	GetSessionTokenByLogoutToken(ctx context.Context, logoutToken string) (string, error)

	// DeleteLogoutToken removes the logout token index entry.
	DeleteLogoutToken(ctx context.Context, logoutToken string) error
}
