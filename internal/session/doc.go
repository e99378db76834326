// Package session implements the gateway's server-side sessions.
//
// Sessions are keyed by an opaque random token carried in a signed cookie
// (one cookie name per session type, citizen vs employee) and persisted as
// JSON documents in a Store. Expiry is rolling: every request that reaches
// the session middleware extends the session and its cookie.
//
// A session record is never written to the store until it carries something
// worth keeping, so anonymous traffic does not pollute the store.
//
// Each authenticated SAML session additionally shadows itself with a logout
// token, a secondary store index derived from the SAML NameID and
// SessionIndex. Single Logout requests from the identity provider arrive
// without cookies; the logout token is how such a request finds and destroys
// the session it refers to. The token always outlives its session by at
// least 30 minutes.
package session
