package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/edukita/apigw/internal/logger"
	"github.com/edukita/apigw/internal/session"
)

// Headers stamped onto upstream requests. They are stripped from inbound
// traffic first: the backend trusts them, so only the gateway may set them.
const (
	HeaderUser      = "X-User"
	HeaderRequestID = "X-Request-ID"
	HeaderClientIP  = "X-Original-Forwarded-For"
)

// userHeader is the identity document the backend reads from X-User.
type userHeader struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	GlobalRoles []string   `json:"globalRoles,omitempty"`
	ScopedRoles []string   `json:"allScopedRoles,omitempty"`
	EmployeeID  *uuid.UUID `json:"employeeId,omitempty"`
}

// Proxy forwards requests to the backend service.
type Proxy struct {
	rp  *httputil.ReverseProxy
	log *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger used for upstream errors.
func WithLogger(log *slog.Logger) Option {
	return func(p *Proxy) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a reverse proxy targeting the backend base URL.
func New(target string, opts ...Option) (*Proxy, error) {
	upstream, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	p := &Proxy{log: logger.NewDiscard()}
	for _, opt := range opts {
		opt(p)
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host

			// Never forward client-supplied identity headers.
			pr.Out.Header.Del(HeaderUser)
			pr.Out.Header.Del(HeaderRequestID)
			pr.Out.Header.Del(HeaderClientIP)

			pr.Out.Header.Set(HeaderClientIP, ClientIP(pr.In))
			if reqID := middleware.GetReqID(pr.In.Context()); reqID != "" {
				pr.Out.Header.Set(HeaderRequestID, reqID)
			}
			if user := session.UserFromContext(pr.In.Context()); user != nil {
				if value, err := json.Marshal(userHeader{
					ID:          user.ID,
					Type:        string(user.Type),
					GlobalRoles: user.GlobalRoles,
					ScopedRoles: user.ScopedRoles,
					EmployeeID:  user.EmployeeID,
				}); err == nil {
					pr.Out.Header.Set(HeaderUser, string(value))
				}
			}
		},
		FlushInterval: 100 * time.Millisecond,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.log.ErrorContext(r.Context(), "upstream request failed",
				logger.Component("proxy"), logger.Error(err),
				slog.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}
