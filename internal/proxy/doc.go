// Package proxy forwards API traffic to the backend service, stamping each
// request with the authenticated user identity and the request id, and
// stripping the same headers from inbound traffic so clients cannot spoof
// them.
package proxy
