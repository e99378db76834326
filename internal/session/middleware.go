package session

import (
	"context"
	"net/http"

	"github.com/edukita/apigw/internal/logger"
)

type sessionCtxKey struct{}

// Middleware loads the request's session before the handler runs and saves
// it just before the response headers are flushed, rolling the cookie
// expiry. Handlers mutate the session in place through the pointer stored
// in the request context.
//
// Load failures degrade to an anonymous session. Save failures are logged
// but do not fail the response: a dropped session touch only shortens the
// rolling window.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := m.Load(ctx, r)
		if err != nil {
			m.log.ErrorContext(ctx, "failed to initialize session",
				logger.Component("session"), logger.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(context.WithValue(ctx, sessionCtxKey{}, sess))

		sw := &saveWriter{
			ResponseWriter: w,
			save: func(hw http.ResponseWriter) {
				if sess.IsAuthenticated() {
					if err := m.RefreshLogoutToken(r.Context(), sess); err != nil {
						m.log.WarnContext(r.Context(), "failed to refresh logout token",
							logger.Component("session"), logger.Error(err))
					}
				}
				if err := m.Save(r.Context(), hw, sess); err != nil {
					m.log.ErrorContext(r.Context(), "failed to save session",
						logger.Component("session"),
						logger.SessionType(string(m.sessionType)),
						logger.Error(err))
				}
			},
		}

		next.ServeHTTP(sw, r)

		// Handlers that never write still need the session persisted.
		sw.flushSave()
	})
}

// saveWriter runs the save hook exactly once, right before the first header
// or body write, so Set-Cookie headers still make it onto the wire.
type saveWriter struct {
	http.ResponseWriter
	save  func(http.ResponseWriter)
	saved bool
}

func (w *saveWriter) flushSave() {
	if !w.saved {
		w.saved = true
		w.save(w.ResponseWriter)
	}
}

func (w *saveWriter) WriteHeader(code int) {
	w.flushSave()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveWriter) Write(b []byte) (int, error) {
	w.flushSave()
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController, so
// downstream handlers (the streaming proxy in particular) can still flush
// and hijack through this wrapper.
func (w *saveWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *saveWriter) Flush() {
	w.flushSave()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// FromContext returns the session attached to the request context by
// Middleware, or nil when no session middleware ran.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return sess
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *User {
	sess := FromContext(ctx)
	if sess == nil || !sess.IsAuthenticated() {
		return nil
	}
	return sess.User
}
