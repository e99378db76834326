package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edukita/apigw/internal/auth"
	"github.com/edukita/apigw/internal/csrf"
	"github.com/edukita/apigw/internal/httperr"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/mobile"
	"github.com/edukita/apigw/internal/session"
)

// Deps carries everything the router mounts. All fields are required except
// Log.
type Deps struct {
	Log     *slog.Logger
	Version string

	// HealthProbe reports whether the session store is reachable.
	HealthProbe func(context.Context) error

	Responder *httperr.Responder

	CitizenSessions  *session.Manager
	EmployeeSessions *session.Manager

	CitizenCSRF  *csrf.Protection
	EmployeeCSRF *csrf.Protection

	Mobile *mobile.Service

	// Proxy forwards anything not handled by the gateway itself.
	Proxy http.Handler

	// Identity providers per audience.
	AD            *auth.Handlers
	Evaka         *auth.Handlers
	SFI           *auth.Handlers
	EvakaCustomer *auth.Handlers
}

// NewRouter builds the gateway's HTTP handler.
func NewRouter(d Deps) chi.Router {
	log := d.Log
	if log == nil {
		log = logger.NewDiscard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", healthHandler(d.HealthProbe, log))
	r.Get("/version", versionHandler(d.Version))

	// Employee audience: SAML employee providers, mobile devices, and the
	// internal API. Login callbacks and pairing arrive from outside the
	// frontend and carry no CSRF token, so they are mounted before the CSRF
	// middleware; everything state-changing behind it is checked regardless
	// of authentication state.
	r.Route("/api/internal", func(r chi.Router) {
		r.Use(d.EmployeeSessions.Middleware)
		r.Use(d.Mobile.RefreshSessionMiddleware)

		r.Get("/auth/status", statusHandler(d.EmployeeCSRF, d.Version, log))
		r.Mount("/auth/ad", d.AD.Routes())
		r.Mount("/auth/evaka", d.Evaka.Routes())
		r.Post("/auth/mobile", d.Responder.Wrap(d.Mobile.HandlePairingValidation))

		r.Group(func(r chi.Router) {
			r.Use(d.EmployeeCSRF.Middleware)

			r.Post("/auth/pin-login", d.Responder.Wrap(d.Mobile.HandlePinLogin))
			r.Post("/auth/pin-logout", d.Responder.Wrap(d.Mobile.HandlePinLogout))

			r.Handle("/*", d.Proxy)
		})
	})

	// Citizen audience: suomi.fi and Keycloak citizen providers, and the
	// application API.
	r.Route("/api/application", func(r chi.Router) {
		r.Use(d.CitizenSessions.Middleware)

		r.Get("/auth/status", statusHandler(d.CitizenCSRF, d.Version, log))
		r.Mount("/auth/saml", d.SFI.Routes())
		r.Mount("/auth/evaka-customer", d.EvakaCustomer.Routes())

		r.Group(func(r chi.Router) {
			r.Use(d.CitizenCSRF.Middleware)

			r.Handle("/*", d.Proxy)
		})
	})

	return r
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version))
	}
}

func healthHandler(probe func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if probe != nil {
			if err := probe(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "health probe failed",
					logger.Component("health"), logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("DOWN"))
				return
			}
		}
		_, _ = w.Write([]byte("UP"))
	}
}
