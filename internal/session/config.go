package session

import "time"

// Config holds session manager configuration with environment variable
// support. The top-level config loads it once; the citizen and employee
// managers share the same settings and differ only in their session type.
type Config struct {
	// TTL is the rolling idle timeout for sessions.
	TTL time.Duration `env:"SESSION_TTL" envDefault:"32m"`

	// SecureCookies controls the Secure attribute on session cookies.
	// Disabled only in local development over plain HTTP.
	SecureCookies bool `env:"COOKIE_SECURE" envDefault:"true"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           32 * time.Minute,
		SecureCookies: true,
	}
}
