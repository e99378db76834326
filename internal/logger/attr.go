package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Attribute helpers use the empty Attr pattern for nil safety, so call sites
// can write log.Info("msg", logger.Error(err)) without explicit nil checks.

// Error creates an attribute for a single error under the key "error".
// Returns an empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags log records with the emitting subsystem.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// UserID creates an attribute for the authenticated user id.
// Returns an empty Attr for the nil UUID.
func UserID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("user_id", id.String())
}

// SessionType tags log records with the session type (citizen or employee).
func SessionType(t string) slog.Attr {
	return slog.String("session_type", t)
}

// RequestID creates an attribute for the request correlation id.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Provider tags log records with the identity provider name.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}
