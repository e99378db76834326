// Package gateway assembles the HTTP surface: health and auth status
// endpoints, the per-provider login routes, mobile device routes, and the
// reverse-proxied API, each behind the session and CSRF middleware of its
// audience.
//
// Two audiences share the gateway. Employee traffic (including paired
// mobile devices) lives under /api/internal; citizen traffic lives under
// /api/application. Each mount carries its own session cookie, CSRF cookie,
// and set of identity providers.
package gateway
