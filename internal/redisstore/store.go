// Package redisstore persists gateway sessions and their secondary indexes
// in Redis. Key layout:
//
//	sess:<token>  session JSON document, TTL = session expiry
//	slo:<token>   logout token -> session token, TTL = session TTL + 60 min
//
// Expiry is enforced twice: Redis TTLs garbage-collect, and the session
// document's own ExpiresAt is validated on read.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edukita/apigw/internal/session"
)

const (
	sessionKeyPrefix     = "sess:"
	logoutTokenKeyPrefix = "slo:"
)

// Store is a Redis-backed session.Store.
type Store struct {
	client redis.UniversalClient
}

// New creates a session store on the given Redis client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func sessionKey(token string) string     { return sessionKeyPrefix + token }
func logoutTokenKey(token string) string { return logoutTokenKeyPrefix + token }

// Get returns the session stored under the token.
func (s *Store) Get(ctx context.Context, token string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redisstore: decode session: %w", err)
	}
	return &sess, nil
}

// GetRaw returns the raw session document without decoding.
func (s *Store) GetRaw(ctx context.Context, token string) ([]byte, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get raw session: %w", err)
	}
	return raw, nil
}

// Save persists the session document with the given TTL.
func (s *Store) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return session.ErrExpired
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redisstore: encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(sess.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save session: %w", err)
	}
	return nil
}

// Delete removes the session document. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete session: %w", err)
	}
	return nil
}

// SetLogoutToken writes the logout token -> session token index entry.
func (s *Store) SetLogoutToken(ctx context.Context, logoutToken, sessionToken string, ttl time.Duration) error {
	if err := s.client.Set(ctx, logoutTokenKey(logoutToken), sessionToken, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set logout token: %w", err)
	}
	return nil
}

// GetSessionTokenByLogoutToken resolves a logout token to its session token.
func (s *Store) GetSessionTokenByLogoutToken(ctx context.Context, logoutToken string) (string, error) {
	val, err := s.client.Get(ctx, logoutTokenKey(logoutToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", session.ErrNotFound
		}
		return "", fmt.Errorf("redisstore: get logout token: %w", err)
	}
	return val, nil
}

// DeleteLogoutToken removes the logout token index entry.
func (s *Store) DeleteLogoutToken(ctx context.Context, logoutToken string) error {
	if err := s.client.Del(ctx, logoutTokenKey(logoutToken)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete logout token: %w", err)
	}
	return nil
}
