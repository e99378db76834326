// Package backend is the typed REST client for the service this gateway
// fronts. The gateway never computes user roles itself: every login path
// resolves the canonical user record and role set through these calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds backend client settings with environment variable support.
type Config struct {
	URL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8888"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
}

// Client talks to the backend's system-level endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a backend client from config.
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// NewWithHTTPClient creates a backend client with a caller-supplied
// *http.Client. Used by tests to point at an httptest server.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// do issues a JSON request and decodes a JSON response into out (when out
// is non-nil). Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return newStatusError(res)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response from %s: %w", path, err)
	}
	return nil
}

// EmployeeLogin resolves or creates the canonical employee record for a
// verified SAML assertion and returns it with its role sets.
func (c *Client) EmployeeLogin(ctx context.Context, req EmployeeLoginRequest) (*EmployeeUser, error) {
	var user EmployeeUser
	if err := c.do(ctx, http.MethodPost, "/system/employee-login", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CitizenLogin resolves or creates the canonical citizen record for a
// verified SAML assertion.
func (c *Client) CitizenLogin(ctx context.Context, req CitizenLoginRequest) (*CitizenUser, error) {
	var user CitizenUser
	if err := c.do(ctx, http.MethodPost, "/system/citizen-login", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ValidatePairing completes a mobile device pairing by checking the
// challenge/response key pair against the pending pairing.
func (c *Client) ValidatePairing(ctx context.Context, id string, req PairingValidationRequest) (*MobileDeviceIdentity, error) {
	var device MobileDeviceIdentity
	path := fmt.Sprintf("/system/pairings/%s/validation", id)
	if err := c.do(ctx, http.MethodPost, path, req, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// IdentifyMobileDevice resolves a long-term token back to its device.
// A removed device or rotated token yields a *StatusError with status 404.
func (c *Client) IdentifyMobileDevice(ctx context.Context, longTermToken string) (*MobileDeviceIdentity, error) {
	var device MobileDeviceIdentity
	path := "/system/mobile-identity/" + longTermToken
	if err := c.do(ctx, http.MethodGet, path, nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// EmployeePinLogin verifies an employee PIN on a paired mobile device.
func (c *Client) EmployeePinLogin(ctx context.Context, req PinLoginRequest) (*PinLoginResponse, error) {
	var res PinLoginResponse
	if err := c.do(ctx, http.MethodPost, "/system/mobile-pin-login", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EmployeePinLogout clears the PIN login state on the backend side.
func (c *Client) EmployeePinLogout(ctx context.Context, req PinLogoutRequest) error {
	return c.do(ctx, http.MethodPost, "/system/mobile-pin-logout", req, nil)
}

// GetCitizenBySSN looks a citizen up in the development directory.
// Only available when the backend runs with dev data; used by mock login.
func (c *Client) GetCitizenBySSN(ctx context.Context, ssn string) (*DevCitizen, error) {
	var citizen DevCitizen
	if err := c.do(ctx, http.MethodGet, "/dev-api/citizen/ssn/"+ssn, nil, &citizen); err != nil {
		return nil, err
	}
	return &citizen, nil
}

// GetEmployeeByExternalID looks an employee up in the development directory.
func (c *Client) GetEmployeeByExternalID(ctx context.Context, externalID string) (*DevEmployee, error) {
	var employee DevEmployee
	if err := c.do(ctx, http.MethodGet, "/dev-api/employee/external-id/"+externalID, nil, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}
