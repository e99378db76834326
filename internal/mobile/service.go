package mobile

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/cookie"
	"github.com/edukita/apigw/internal/httperr"
	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

// Service binds mobile device identity into employee sessions. Its own
// responsibility is cookie issuance/clearing; pairing validation and token
// recognition are delegated to the backend identity service.
type Service struct {
	codec    *TokenCodec
	backend  *backend.Client
	sessions *session.Manager
	cookies  *cookie.Manager
	validate *validator.Validate
	secure   bool
	log      *slog.Logger
}

// NewService creates the mobile device service.
func NewService(codec *TokenCodec, be *backend.Client, sessions *session.Manager, cookies *cookie.Manager, secure bool, log *slog.Logger) *Service {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Service{
		codec:    codec,
		backend:  be,
		sessions: sessions,
		cookies:  cookies,
		validate: validator.New(),
		secure:   secure,
		log:      log,
	}
}

// setCookie issues or rolls the long-term cookie.
func (s *Service) setCookie(w http.ResponseWriter, longTermToken string) error {
	jwtToken, err := s.codec.Issue(longTermToken)
	if err != nil {
		return err
	}
	return s.cookies.SetSigned(w, CookieName, jwtToken,
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(s.secure),
		cookie.WithSameSite(http.SameSiteLaxMode),
		cookie.WithMaxAge(int(s.codec.TTL().Seconds())),
	)
}

// clearCookie removes the long-term cookie. Used when the backend no longer
// recognizes the token; this is a defined state transition, not an error.
func (s *Service) clearCookie(w http.ResponseWriter) {
	s.cookies.Delete(w, CookieName,
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(s.secure),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
}

// deviceUser builds the session user a paired device acts as.
func deviceUser(device *backend.MobileDeviceIdentity) *session.User {
	return &session.User{
		ID:          device.ID,
		Type:        session.UserTypeMobile,
		GlobalRoles: []string{"MOBILE"},
	}
}

type pairingValidationBody struct {
	ID           string `json:"id" validate:"required,uuid4"`
	ChallengeKey string `json:"challengeKey" validate:"required"`
	ResponseKey  string `json:"responseKey" validate:"required"`
}

// HandlePairingValidation completes a device pairing: the challenge/response
// pair is checked by the backend, a MOBILE session login is performed, and
// the long-term cookie is set. Responds 204 on success.
func (s *Service) HandlePairingValidation(w http.ResponseWriter, r *http.Request) error {
	var body pairingValidationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return httperr.InvalidRequest("malformed pairing validation body")
	}
	if err := s.validate.Struct(body); err != nil {
		return httperr.InvalidRequest("invalid pairing validation body")
	}

	device, err := s.backend.ValidatePairing(r.Context(), body.ID, backend.PairingValidationRequest{
		ChallengeKey: body.ChallengeKey,
		ResponseKey:  body.ResponseKey,
	})
	if err != nil {
		return err
	}

	sess := session.FromContext(r.Context())
	if sess == nil {
		var serr error
		sess, serr = session.New(session.TypeEmployee, s.sessions.TTL())
		if serr != nil {
			return serr
		}
	}
	if err := s.sessions.Authenticate(r.Context(), w, sess, deviceUser(device)); err != nil {
		return err
	}

	if err := s.setCookie(w, device.LongTermToken); err != nil {
		return err
	}

	s.log.InfoContext(r.Context(), "mobile device paired",
		logger.Component("mobile"), logger.UserID(device.ID))

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// RefreshSessionMiddleware is the token-recognized refresh path: a request
// without an authenticated session but with a valid long-term cookie gets a
// fresh session login and a rolled cookie. An unrecognized token clears the
// cookie and lets the request continue unauthenticated.
func (s *Service) RefreshSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess != nil && sess.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}

		jwtToken, err := s.cookies.GetSigned(r, CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		longTermToken, err := s.codec.Verify(jwtToken)
		if err != nil {
			s.clearCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		device, err := s.backend.IdentifyMobileDevice(r.Context(), longTermToken)
		if err != nil {
			if backend.IsNotFound(err) {
				// Device removed or token rotated: clear and move on.
				s.clearCookie(w)
			} else {
				s.log.WarnContext(r.Context(), "mobile identity lookup failed",
					logger.Component("mobile"), logger.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		if err := s.sessions.Authenticate(r.Context(), w, sess, deviceUser(device)); err != nil {
			s.log.ErrorContext(r.Context(), "mobile session refresh failed",
				logger.Component("mobile"), logger.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if err := s.setCookie(w, device.LongTermToken); err != nil {
			s.log.ErrorContext(r.Context(), "failed to roll mobile cookie",
				logger.Component("mobile"), logger.Error(err))
		}

		next.ServeHTTP(w, r)
	})
}

type pinLoginBody struct {
	EmployeeID string `json:"employeeId" validate:"required,uuid4"`
	PIN        string `json:"pin" validate:"required,numeric,len=4"`
}

// HandlePinLogin verifies an employee PIN on a paired device. A successful
// login binds the employee to the device's session.
func (s *Service) HandlePinLogin(w http.ResponseWriter, r *http.Request) error {
	sess := session.FromContext(r.Context())
	if sess == nil || !sess.IsAuthenticated() || sess.User.Type != session.UserTypeMobile {
		return httperr.HTTPError{Status: http.StatusForbidden, Code: "forbidden", Message: "PIN login requires a mobile session"}
	}

	var body pinLoginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return httperr.InvalidRequest("malformed pin login body")
	}
	if err := s.validate.Struct(body); err != nil {
		return httperr.InvalidRequest("invalid pin login body")
	}

	employeeID, err := uuidParse(body.EmployeeID)
	if err != nil {
		return httperr.InvalidRequest("invalid employee id")
	}

	res, err := s.backend.EmployeePinLogin(r.Context(), backend.PinLoginRequest{
		EmployeeID: employeeID,
		PIN:        body.PIN,
	})
	if err != nil {
		return err
	}

	if res.Status == backend.PinLoginSuccess {
		sess.User.EmployeeID = &employeeID
	}

	return writeJSON(w, http.StatusOK, res)
}

// HandlePinLogout clears the PIN login state for the device's session.
func (s *Service) HandlePinLogout(w http.ResponseWriter, r *http.Request) error {
	sess := session.FromContext(r.Context())
	if sess == nil || !sess.IsAuthenticated() || sess.User.Type != session.UserTypeMobile {
		return httperr.HTTPError{Status: http.StatusForbidden, Code: "forbidden", Message: "PIN logout requires a mobile session"}
	}

	if sess.User.EmployeeID != nil {
		if err := s.backend.EmployeePinLogout(r.Context(), backend.PinLogoutRequest{
			EmployeeID: *sess.User.EmployeeID,
		}); err != nil {
			return err
		}
		sess.User.EmployeeID = nil
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
