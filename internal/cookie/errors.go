package cookie

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSecret is returned when no signing secret is configured.
	ErrNoSecret = errors.New("cookie: no signing secret configured")
	// ErrSecretTooShort is returned when a signing secret is shorter than required.
	ErrSecretTooShort = errors.New("cookie: secret too short")
	// ErrCookieNotFound is returned when the named cookie is absent from the request.
	ErrCookieNotFound = errors.New("cookie: not found")
	// ErrInvalidFormat is returned when a signed value is not in the expected format.
	ErrInvalidFormat = errors.New("cookie: invalid format")
	// ErrInvalidSignature is returned when the HMAC signature does not verify.
	ErrInvalidSignature = errors.New("cookie: invalid signature")
)

// ErrCookieTooLarge is returned when a serialized cookie exceeds the size limit.
type ErrCookieTooLarge struct {
	Name string
	Size int
	Max  int
}

func (e ErrCookieTooLarge) Error() string {
	return fmt.Sprintf("cookie: %q is %d bytes, exceeds maximum of %d", e.Name, e.Size, e.Max)
}
