package session

import "errors"

var (
	// ErrNotFound is returned when a session or logout token is absent from the store.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a stored session has already expired.
	ErrExpired = errors.New("session has expired")
	// ErrTokenGeneration is returned when random token generation fails.
	ErrTokenGeneration = errors.New("failed to generate session token")
	// ErrSaveSession is returned when persisting a session fails.
	ErrSaveSession = errors.New("failed to save session")
	// ErrDeleteSession is returned when deleting a session fails.
	ErrDeleteSession = errors.New("failed to delete session")
)
