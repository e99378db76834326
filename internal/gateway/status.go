package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/edukita/apigw/internal/csrf"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

// statusResponse is what frontends poll to decide whether the user is
// logged in. apiVersion is always present so clients can detect gateway
// deployments and force-refresh themselves.
type statusResponse struct {
	LoggedIn   bool        `json:"loggedIn"`
	User       *statusUser `json:"user,omitempty"`
	Roles      []string    `json:"roles,omitempty"`
	APIVersion string      `json:"apiVersion"`
}

type statusUser struct {
	ID       uuid.UUID `json:"id"`
	UserType string    `json:"userType"`
}

// statusHandler reports authentication state and makes sure the caller
// holds a CSRF cookie, so any client able to log in can also submit
// state-changing requests.
func statusHandler(protection *csrf.Protection, version string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := protection.EnsureToken(w, r); err != nil {
			log.ErrorContext(r.Context(), "failed to issue CSRF token",
				logger.Component("gateway"), logger.Error(err))
		}

		resp := statusResponse{APIVersion: version}
		if user := session.UserFromContext(r.Context()); user != nil {
			resp.LoggedIn = true
			resp.User = &statusUser{ID: user.ID, UserType: string(user.Type)}
			resp.Roles = user.GlobalRoles
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.ErrorContext(r.Context(), "failed to write auth status",
				logger.Component("gateway"), logger.Error(err))
		}
	}
}
