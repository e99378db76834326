// Package auth implements federated login for the gateway's identity
// providers: the internal AD federation and Keycloak for employees, and
// suomi.fi and Keycloak for citizens.
//
// Each provider is served by a strategy. The real strategy is a SAML 2.0
// service provider; the development strategy bypasses SAML and resolves
// users from the backend's development directory by an externally supplied
// identifier. Both feed the same claim-to-session-user mapping, so the rest
// of the gateway cannot tell them apart.
package auth
