package mobile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/httperr"
	"github.com/edukita/apigw/internal/mobile"
	"github.com/edukita/apigw/internal/session"
)

const (
	cookieSecret = "mobile-cookie-secret-32-chars!!!"

	pairingID     = "009da566-19ca-432e-ad2d-3041481b5bae"
	deviceIDValue = "7f81ec05-657a-4d18-8196-67f4c8a33989"
	longTermToken = "backend-long-term-token"
)

// memStore is a minimal in-memory session.Store.
type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore { return &memStore{docs: make(map[string][]byte)} }

func (s *memStore) Get(ctx context.Context, token string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *memStore) GetRaw(ctx context.Context, token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) Save(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sess.Token] = raw
	return nil
}

func (s *memStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, token)
	return nil
}

func (s *memStore) SetLogoutToken(ctx context.Context, logoutToken, sessionToken string, ttl time.Duration) error {
	return nil
}

func (s *memStore) GetSessionTokenByLogoutToken(ctx context.Context, logoutToken string) (string, error) {
	return "", session.ErrNotFound
}

func (s *memStore) DeleteLogoutToken(ctx context.Context, logoutToken string) error { return nil }

type testEnv struct {
	store    *memStore
	sessions *session.Manager
	cookies  *cookie.Manager
	codec    *mobile.TokenCodec
	service  *mobile.Service
	wrap     *httperr.Responder
}

// newTestEnv wires the mobile service against an httptest backend.
func newTestEnv(t *testing.T, backendHandler http.HandlerFunc) *testEnv {
	t.Helper()

	srv := httptest.NewServer(backendHandler)
	t.Cleanup(srv.Close)
	be := backend.NewWithHTTPClient(srv.URL, srv.Client())

	cookies, err := cookie.New([]string{cookieSecret})
	require.NoError(t, err)

	store := newMemStore()
	sessions := session.NewManager(session.TypeEmployee, store, cookies, session.Config{
		TTL:           32 * time.Minute,
		SecureCookies: true,
	})

	codec, err := mobile.NewTokenCodec(mobile.Config{TokenSecret: tokenSecret, TokenTTL: 2160 * time.Hour})
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		sessions: sessions,
		cookies:  cookies,
		codec:    codec,
		service:  mobile.NewService(codec, be, sessions, cookies, true, nil),
		wrap:     httperr.NewResponder(nil, true),
	}
}

// pairingBackend recognizes the well-known pairing and long-term token.
func pairingBackend(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/system/pairings/"+pairingID+"/validation":
			var req backend.PairingValidationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.ChallengeKey != "challenge" || req.ResponseKey != "response" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(backend.MobileDeviceIdentity{
				ID:            uuid.MustParse(deviceIDValue),
				LongTermToken: longTermToken,
			})
		case strings.HasPrefix(r.URL.Path, "/system/mobile-identity/"):
			token := strings.TrimPrefix(r.URL.Path, "/system/mobile-identity/")
			if token != longTermToken {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(backend.MobileDeviceIdentity{
				ID:            uuid.MustParse(deviceIDValue),
				LongTermToken: longTermToken,
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandlePairingValidation(t *testing.T) {
	t.Run("valid pairing establishes session and long-term cookie", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		body := `{"id":"` + pairingID + `","challengeKey":"challenge","responseKey":"response"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/mobile", strings.NewReader(body))
		w := httptest.NewRecorder()

		h := e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePairingValidation))
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)

		cookies := w.Result().Cookies()
		sessionCookie := findCookie(cookies, "evaka.employee.session")
		require.NotNil(t, sessionCookie)

		mobileCookie := findCookie(cookies, mobile.CookieName)
		require.NotNil(t, mobileCookie)
		assert.True(t, mobileCookie.HttpOnly)
		assert.Equal(t, int((2160 * time.Hour).Seconds()), mobileCookie.MaxAge)

		// The new session is a MOBILE user with the device's id.
		var authenticated *session.Session
		for token := range e.store.docs {
			sess, err := e.store.Get(context.Background(), token)
			require.NoError(t, err)
			authenticated = sess
		}
		require.NotNil(t, authenticated)
		require.NotNil(t, authenticated.User)
		assert.Equal(t, deviceIDValue, authenticated.User.ID.String())
		assert.Equal(t, session.UserTypeMobile, authenticated.User.Type)
		assert.Contains(t, authenticated.User.GlobalRoles, "MOBILE")
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		r := httptest.NewRequest(http.MethodPost, "/auth/mobile", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePairingValidation)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-uuid pairing id is a 400", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		body := `{"id":"not-a-uuid","challengeKey":"challenge","responseKey":"response"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/mobile", strings.NewReader(body))
		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePairingValidation)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown pairing passes the backend 404 through", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		body := `{"id":"` + uuid.NewString() + `","challengeKey":"challenge","responseKey":"response"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/mobile", strings.NewReader(body))
		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePairingValidation)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// mobileCookieFor issues a valid long-term cookie for the given token value.
func (e *testEnv) mobileCookieFor(t *testing.T, token string) *http.Cookie {
	t.Helper()
	jwtToken, err := e.codec.Issue(token)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	require.NoError(t, e.cookies.SetSigned(w, mobile.CookieName, jwtToken))
	return w.Result().Cookies()[0]
}

func TestRefreshSessionMiddleware(t *testing.T) {
	okProbe := func(loggedIn *bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*loggedIn = session.UserFromContext(r.Context()) != nil
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("no cookie leaves the request untouched", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		var loggedIn bool
		h := e.sessions.Middleware(e.service.RefreshSessionMiddleware(okProbe(&loggedIn)))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api", nil))

		assert.False(t, loggedIn)
		assert.Nil(t, findCookie(w.Result().Cookies(), mobile.CookieName))
	})

	t.Run("recognized token logs the device in and rolls the cookie", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		var loggedIn bool
		h := e.sessions.Middleware(e.service.RefreshSessionMiddleware(okProbe(&loggedIn)))

		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.AddCookie(e.mobileCookieFor(t, longTermToken))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.True(t, loggedIn)

		rolled := findCookie(w.Result().Cookies(), mobile.CookieName)
		require.NotNil(t, rolled)
		assert.Positive(t, rolled.MaxAge)
		require.NotNil(t, findCookie(w.Result().Cookies(), "evaka.employee.session"))
	})

	t.Run("unrecognized token clears the cookie", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		var loggedIn bool
		h := e.sessions.Middleware(e.service.RefreshSessionMiddleware(okProbe(&loggedIn)))

		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.AddCookie(e.mobileCookieFor(t, "rotated-away"))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.False(t, loggedIn)
		cleared := findCookie(w.Result().Cookies(), mobile.CookieName)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})

	t.Run("garbage jwt clears the cookie", func(t *testing.T) {
		e := newTestEnv(t, pairingBackend(t))

		var loggedIn bool
		h := e.sessions.Middleware(e.service.RefreshSessionMiddleware(okProbe(&loggedIn)))

		w := httptest.NewRecorder()
		sig := httptest.NewRecorder()
		require.NoError(t, e.cookies.SetSigned(sig, mobile.CookieName, "not-a-jwt"))
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.AddCookie(sig.Result().Cookies()[0])

		h.ServeHTTP(w, r)

		assert.False(t, loggedIn)
		cleared := findCookie(w.Result().Cookies(), mobile.CookieName)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})

	t.Run("authenticated session skips the backend entirely", func(t *testing.T) {
		backendCalled := false
		e := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
			backendCalled = true
			http.NotFound(w, r)
		})

		sess, err := session.New(session.TypeEmployee, 32*time.Minute)
		require.NoError(t, err)
		login := httptest.NewRecorder()
		require.NoError(t, e.sessions.Authenticate(context.Background(), login, sess, &session.User{
			ID:   uuid.New(),
			Type: session.UserTypeEmployee,
		}))

		var loggedIn bool
		h := e.sessions.Middleware(e.service.RefreshSessionMiddleware(okProbe(&loggedIn)))

		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.AddCookie(login.Result().Cookies()[0])
		r.AddCookie(e.mobileCookieFor(t, longTermToken))

		h.ServeHTTP(httptest.NewRecorder(), r)

		assert.True(t, loggedIn)
		assert.False(t, backendCalled)
	})
}

func TestPinLogin(t *testing.T) {
	employeeID := uuid.New()

	pinBackend := func(status backend.PinLoginStatus) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/system/mobile-pin-login":
				_ = json.NewEncoder(w).Encode(backend.PinLoginResponse{Status: status})
			case "/system/mobile-pin-logout":
				w.WriteHeader(http.StatusOK)
			default:
				http.NotFound(w, r)
			}
		}
	}

	// mobileSession logs a device in and returns its session cookie.
	mobileSession := func(t *testing.T, e *testEnv) *http.Cookie {
		t.Helper()
		sess, err := session.New(session.TypeEmployee, 32*time.Minute)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		require.NoError(t, e.sessions.Authenticate(context.Background(), w, sess, &session.User{
			ID:          uuid.MustParse(deviceIDValue),
			Type:        session.UserTypeMobile,
			GlobalRoles: []string{"MOBILE"},
		}))
		return w.Result().Cookies()[0]
	}

	t.Run("requires a mobile session", func(t *testing.T) {
		e := newTestEnv(t, pinBackend(backend.PinLoginSuccess))

		body := `{"employeeId":"` + employeeID.String() + `","pin":"1234"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/pin-login", strings.NewReader(body))
		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePinLogin)).ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("success binds the employee to the session", func(t *testing.T) {
		e := newTestEnv(t, pinBackend(backend.PinLoginSuccess))

		body := `{"employeeId":"` + employeeID.String() + `","pin":"1234"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/pin-login", strings.NewReader(body))
		r.AddCookie(mobileSession(t, e))

		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePinLogin)).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var res backend.PinLoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, backend.PinLoginSuccess, res.Status)

		// The saved session now carries the employee binding.
		var stored *session.Session
		for token := range e.store.docs {
			sess, err := e.store.Get(context.Background(), token)
			require.NoError(t, err)
			stored = sess
		}
		require.NotNil(t, stored)
		require.NotNil(t, stored.User.EmployeeID)
		assert.Equal(t, employeeID, *stored.User.EmployeeID)
	})

	t.Run("wrong pin does not bind", func(t *testing.T) {
		e := newTestEnv(t, pinBackend(backend.PinLoginWrongPin))

		body := `{"employeeId":"` + employeeID.String() + `","pin":"0000"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/pin-login", strings.NewReader(body))
		r.AddCookie(mobileSession(t, e))

		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePinLogin)).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var res backend.PinLoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, backend.PinLoginWrongPin, res.Status)

		for token := range e.store.docs {
			sess, err := e.store.Get(context.Background(), token)
			require.NoError(t, err)
			assert.Nil(t, sess.User.EmployeeID)
		}
	})

	t.Run("pin logout clears the binding", func(t *testing.T) {
		e := newTestEnv(t, pinBackend(backend.PinLoginSuccess))

		sessCookie := mobileSession(t, e)

		login := httptest.NewRequest(http.MethodPost, "/auth/pin-login",
			strings.NewReader(`{"employeeId":"`+employeeID.String()+`","pin":"1234"}`))
		login.AddCookie(sessCookie)
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePinLogin)).ServeHTTP(httptest.NewRecorder(), login)

		logout := httptest.NewRequest(http.MethodPost, "/auth/pin-logout", nil)
		logout.AddCookie(sessCookie)
		w := httptest.NewRecorder()
		e.sessions.Middleware(e.wrap.Wrap(e.service.HandlePinLogout)).ServeHTTP(w, logout)

		assert.Equal(t, http.StatusNoContent, w.Code)
		for token := range e.store.docs {
			sess, err := e.store.Get(context.Background(), token)
			require.NoError(t, err)
			assert.Nil(t, sess.User.EmployeeID)
		}
	})
}
