package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/apigw/internal/auth"
	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/session"
)

const cookieSecret = "auth-routes-secret-32-characters"

// memStore is a minimal in-memory session.Store with a logout token index.
type memStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	logout map[string]string
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte), logout: make(map[string]string)}
}

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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logout[logoutToken] = sessionToken
	return nil
}

func (s *memStore) GetSessionTokenByLogoutToken(ctx context.Context, logoutToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.logout[logoutToken]
	if !ok {
		return "", session.ErrNotFound
	}
	return token, nil
}

func (s *memStore) DeleteLogoutToken(ctx context.Context, logoutToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logout, logoutToken)
	return nil
}

// stubStrategy scripts the strategy outcomes for handler tests.
type stubStrategy struct {
	loginUser   *session.User
	loginErr    error
	logoutEvent *auth.LogoutEvent
	logoutErr   error
}

func (s *stubStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, relayState string) error {
	http.Redirect(w, r, "https://idp.example.com/sso?RelayState="+relayState, http.StatusFound)
	return nil
}

func (s *stubStrategy) HandleLoginCallback(w http.ResponseWriter, r *http.Request) (*session.User, error) {
	return s.loginUser, s.loginErr
}

func (s *stubStrategy) InitiateLogout(w http.ResponseWriter, r *http.Request, user *session.User, relayState string) (bool, error) {
	return false, nil
}

func (s *stubStrategy) ParseLogoutCallback(r *http.Request) (*auth.LogoutEvent, error) {
	return s.logoutEvent, s.logoutErr
}

func (s *stubStrategy) CompleteLogout(w http.ResponseWriter, r *http.Request, event *auth.LogoutEvent) (bool, error) {
	if event != nil && event.RequestID != "" {
		http.Redirect(w, r, "https://idp.example.com/slo?SAMLResponse=stub", http.StatusFound)
		return true, nil
	}
	return false, nil
}

type routesEnv struct {
	store    *memStore
	sessions *session.Manager
	strategy *stubStrategy
	handler  http.Handler
}

func newRoutesEnv(t *testing.T) *routesEnv {
	t.Helper()
	cookies, err := cookie.New([]string{cookieSecret})
	require.NoError(t, err)

	store := newMemStore()
	sessions := session.NewManager(session.TypeEmployee, store, cookies, session.Config{
		TTL:           32 * time.Minute,
		SecureCookies: true,
	})

	strategy := &stubStrategy{}
	handlers := auth.NewHandlers("ad", strategy, sessions, "/employee", "/employee/login?loginError=true", "/employee/login")

	return &routesEnv{
		store:    store,
		sessions: sessions,
		strategy: strategy,
		handler:  sessions.Middleware(handlers.Routes()),
	}
}

func samlEmployee() *session.User {
	return &session.User{
		ID:           uuid.New(),
		Type:         session.UserTypeEmployee,
		NameID:       "transient-name-id",
		SessionIndex: "session-index-9",
	}
}

func TestLoginRoutes(t *testing.T) {
	t.Run("login redirects to the provider", func(t *testing.T) {
		e := newRoutesEnv(t)

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Contains(t, w.Header().Get("Location"), "idp.example.com")
	})

	t.Run("successful callback authenticates and redirects", func(t *testing.T) {
		e := newRoutesEnv(t)
		user := samlEmployee()
		e.strategy.loginUser = user

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login/callback", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/employee", w.Header().Get("Location"))

		var sessionCookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == "evaka.employee.session" {
				sessionCookie = c
			}
		}
		require.NotNil(t, sessionCookie)

		// Login also mints the logout token index entry.
		expected := session.LogoutTokenValue(user.NameID, user.SessionIndex)
		_, err := e.store.GetSessionTokenByLogoutToken(context.Background(), expected)
		assert.NoError(t, err)
	})

	t.Run("relay state controls the redirect but cannot leave the origin", func(t *testing.T) {
		e := newRoutesEnv(t)
		e.strategy.loginUser = samlEmployee()

		body := strings.NewReader("RelayState=/employee/units")
		r := httptest.NewRequest(http.MethodPost, "/login/callback", body)
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, r)
		assert.Equal(t, "/employee/units", w.Header().Get("Location"))

		body = strings.NewReader("RelayState=https://evil.example.com/")
		r = httptest.NewRequest(http.MethodPost, "/login/callback", body)
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w = httptest.NewRecorder()
		e.handler.ServeHTTP(w, r)
		assert.Equal(t, "/employee", w.Header().Get("Location"))
	})

	t.Run("failed verification redirects to the failure page", func(t *testing.T) {
		e := newRoutesEnv(t)
		e.strategy.loginErr = errors.New("assertion signature invalid")

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login/callback", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/employee/login?loginError=true", w.Header().Get("Location"))
		assert.Empty(t, e.store.docs)
	})
}

func TestLogoutRoutes(t *testing.T) {
	login := func(t *testing.T, e *routesEnv, user *session.User) *http.Cookie {
		t.Helper()
		e.strategy.loginUser = user
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login/callback", nil))
		for _, c := range w.Result().Cookies() {
			if c.Name == "evaka.employee.session" && c.MaxAge > 0 {
				return c
			}
		}
		t.Fatal("no session cookie issued")
		return nil
	}

	t.Run("logout destroys the local session", func(t *testing.T) {
		e := newRoutesEnv(t)
		c := login(t, e, samlEmployee())

		r := httptest.NewRequest(http.MethodGet, "/logout", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/employee/login", w.Header().Get("Location"))
		assert.Empty(t, e.store.docs)
		assert.Empty(t, e.store.logout)
	})

	t.Run("idp-initiated logout works without a cookie", func(t *testing.T) {
		e := newRoutesEnv(t)
		user := samlEmployee()
		login(t, e, user)
		require.NotEmpty(t, e.store.docs)

		// The SLO request arrives from the IdP carrying only the SAML
		// correlation fields.
		e.strategy.logoutEvent = &auth.LogoutEvent{
			NameID:       user.NameID,
			SessionIndex: user.SessionIndex,
			RequestID:    "_logout-request-1",
		}

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout/callback?SAMLRequest=...", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Contains(t, w.Header().Get("Location"), "idp.example.com/slo",
			"the IdP gets a LogoutResponse back")
		assert.Empty(t, e.store.docs, "session must be destroyed through the logout token")
		assert.Empty(t, e.store.logout)
	})

	t.Run("idp-initiated logout for an unknown session is harmless", func(t *testing.T) {
		e := newRoutesEnv(t)
		e.strategy.logoutEvent = &auth.LogoutEvent{NameID: "ghost", SessionIndex: "gone"}

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout/callback", nil))
		assert.Equal(t, http.StatusFound, w.Code)
	})

	t.Run("logout response finishes an sp-initiated logout", func(t *testing.T) {
		e := newRoutesEnv(t)
		c := login(t, e, samlEmployee())
		e.strategy.logoutEvent = &auth.LogoutEvent{IsResponse: true}

		r := httptest.NewRequest(http.MethodGet, "/logout/callback?SAMLResponse=...", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Empty(t, e.store.docs)
	})

	t.Run("rejected logout message redirects without side effects", func(t *testing.T) {
		e := newRoutesEnv(t)
		login(t, e, samlEmployee())
		e.strategy.logoutErr = errors.New("replayed logout request")

		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout/callback", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.NotEmpty(t, e.store.docs, "session survives a rejected logout message")
	})
}

func TestDevStrategy(t *testing.T) {
	citizenID := uuid.New()

	be := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dev-api/citizen/ssn/070644-937X":
			_ = json.NewEncoder(w).Encode(map[string]string{"ssn": "070644-937X", "firstName": "Johannes", "lastName": "Karhula"})
		case "/system/citizen-login":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": citizenID})
		default:
			http.NotFound(w, r)
		}
	})

	strategy := auth.NewDevStrategy(auth.ProviderConfig{Name: "sfi", Mock: true},
		auth.CitizenResolver{Backend: be}, "Social security number", "/api/application/auth/saml/login/callback")

	t.Run("login renders the dev form", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, strategy.InitiateLogin(w, httptest.NewRequest(http.MethodGet, "/login", nil), "/"))

		assert.Contains(t, w.Body.String(), "Social security number")
		assert.Contains(t, w.Body.String(), "/api/application/auth/saml/login/callback")
	})

	t.Run("callback resolves the identifier", func(t *testing.T) {
		form := strings.NewReader("identifier=070644-937X")
		r := httptest.NewRequest(http.MethodPost, "/login/callback", form)
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		user, err := strategy.HandleLoginCallback(httptest.NewRecorder(), r)
		require.NoError(t, err)
		assert.Equal(t, citizenID, user.ID)
	})

	t.Run("empty identifier is a missing claim", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/login/callback", strings.NewReader(""))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		_, err := strategy.HandleLoginCallback(httptest.NewRecorder(), r)
		assert.ErrorIs(t, err, auth.ErrMissingClaim)
	})
}
