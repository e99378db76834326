// Package csrf implements double-submit-cookie CSRF protection.
//
// Each session type gets its own readable (non-httpOnly) cookie holding a
// random token. State-changing requests must echo the token in a request
// header; client script can read the cookie, cross-origin attackers cannot.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/httperr"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

// HeaderName is the request header the client must echo the token in.
const HeaderName = "X-Evaka-CSRF"

// tokenBytes is the entropy of a CSRF token before hex encoding.
const tokenBytes = 32

// Protection enforces the double-submit-cookie contract for one session type.
type Protection struct {
	sessionType session.Type
	cookies     *cookie.Manager
	responder   *httperr.Responder
	secure      bool
	log         *slog.Logger
}

// New creates CSRF protection bound to a session type.
func New(t session.Type, cookies *cookie.Manager, responder *httperr.Responder, secure bool, log *slog.Logger) *Protection {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Protection{
		sessionType: t,
		cookies:     cookies,
		responder:   responder,
		secure:      secure,
		log:         log,
	}
}

// EnsureToken makes sure the request owner has a CSRF cookie, issuing a new
// token when none is present. Called from the auth status endpoint so every
// client that can log in also holds a token.
func (p *Protection) EnsureToken(w http.ResponseWriter, r *http.Request) error {
	if _, err := p.cookies.Get(r, p.sessionType.CSRFCookieName()); err == nil {
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("csrf: generate token: %w", err)
	}

	// Deliberately readable by client script: the double-submit pattern
	// relies on same-origin script echoing the cookie into the header.
	return p.cookies.Set(w, p.sessionType.CSRFCookieName(), token,
		cookie.WithHTTPOnly(false),
		cookie.WithSecure(p.secure),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
}

// Middleware rejects state-changing requests whose header does not match
// the CSRF cookie. Only safe methods pass through unchecked; endpoints that
// must stay reachable without a token (login callbacks, pairing) are mounted
// outside this middleware instead of being excused by request state.
func (p *Protection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		cookieToken, err := p.cookies.Get(r, p.sessionType.CSRFCookieName())
		headerToken := r.Header.Get(HeaderName)

		if err != nil || cookieToken == "" || headerToken == "" ||
			subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
			// Cookie and submitted header are logged for diagnosis but must
			// never reach the response body.
			p.log.WarnContext(r.Context(), "CSRF token mismatch",
				logger.Component("csrf"),
				logger.SessionType(string(p.sessionType)),
				slog.String("cookie_name", p.sessionType.CSRFCookieName()),
				slog.String("cookie_token", cookieToken),
				slog.String("header_token", headerToken),
			)
			p.responder.Respond(w, r, httperr.ErrCSRF)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
