// Package httperr defines the gateway's HTTP error taxonomy and the single
// place where errors become responses.
//
// Mapping order: CSRF failure -> 403, locally raised invalid request -> 400,
// downstream backend error -> its own status code, anything else -> 500.
// Messages and error codes are included in the body only when detail
// inclusion is enabled; the real cause is always logged server-side.
package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/edukita/apigw/internal/logger"
)

// ErrCSRF marks a CSRF double-submit validation failure.
var ErrCSRF = errors.New("CSRF token error")

// HTTPError is a structured error carrying its own HTTP status.
type HTTPError struct {
	Status  int    `json:"-"`
	Code    string `json:"errorCode,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status for this error.
func (e HTTPError) StatusCode() int { return e.Status }

// InvalidRequest creates a 400 error for malformed request input.
func InvalidRequest(message string) HTTPError {
	return HTTPError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: message,
	}
}

// statusCoder is satisfied by HTTPError and by backend.StatusError, so the
// responder does not need to import the backend package.
type statusCoder interface {
	error
	StatusCode() int
}

type errorCoder interface {
	ErrorCode() string
}

// Responder converts errors raised by handlers into HTTP responses.
type Responder struct {
	log           *slog.Logger
	includeDetail bool
}

// NewResponder creates a Responder. When includeDetail is false, response
// bodies carry only generic messages regardless of the underlying error.
func NewResponder(log *slog.Logger, includeDetail bool) *Responder {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Responder{log: log, includeDetail: includeDetail}
}

// HandlerFunc is an HTTP handler that reports failures as errors instead of
// writing error responses itself.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap adapts a HandlerFunc to http.HandlerFunc, routing any returned error
// through the responder.
func (rs *Responder) Wrap(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			rs.Respond(w, r, err)
		}
	}
}

// Respond writes the response for err following the taxonomy order.
func (rs *Responder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if errors.Is(err, ErrCSRF) {
		// Cookie and header context is logged by the CSRF middleware; here
		// only the mapping is recorded. Never echo cookie values back.
		rs.log.WarnContext(ctx, "request rejected by CSRF protection",
			logger.Component("httperr"), logger.Error(err))
		rs.writeJSON(w, http.StatusForbidden, body{
			Message: rs.detailOr("CSRF token error", http.StatusText(http.StatusForbidden)),
		})
		return
	}

	var he HTTPError
	if errors.As(err, &he) {
		rs.log.WarnContext(ctx, "request failed with local validation error",
			logger.Component("httperr"), logger.Error(err))
		rs.writeJSON(w, he.Status, body{
			Message:   rs.detailOr(he.Message, http.StatusText(he.Status)),
			ErrorCode: rs.detailOr(he.Code, ""),
		})
		return
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := ""
		var ec errorCoder
		if errors.As(err, &ec) {
			code = ec.ErrorCode()
		}
		rs.log.WarnContext(ctx, "downstream request failed",
			logger.Component("httperr"),
			slog.Int("status", sc.StatusCode()),
			logger.Error(err))
		rs.writeJSON(w, sc.StatusCode(), body{
			Message:   rs.detailOr(sc.Error(), http.StatusText(sc.StatusCode())),
			ErrorCode: rs.detailOr(code, ""),
		})
		return
	}

	rs.log.ErrorContext(ctx, "unhandled error in request",
		logger.Component("httperr"), logger.Error(err))
	rs.writeJSON(w, http.StatusInternalServerError, body{
		Message: http.StatusText(http.StatusInternalServerError),
	})
}

type body struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

func (rs *Responder) detailOr(detail, generic string) string {
	if rs.includeDetail {
		return detail
	}
	return generic
}

func (rs *Responder) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.log.Error("failed to encode error response", logger.Error(err))
	}
}
