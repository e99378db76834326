package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crewjam/saml"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukita/apigw/internal/auth"
	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/session"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return backend.NewWithHTTPClient(srv.URL, srv.Client())
}

func assertion(subject string, attrs map[string]string) *saml.Assertion {
	a := &saml.Assertion{
		Subject: &saml.Subject{
			NameID: &saml.NameID{
				Value:           subject,
				Format:          string(saml.TransientNameIDFormat),
				NameQualifier:   "idp.example.com",
				SPNameQualifier: "sp.example.com",
			},
		},
		AuthnStatements: []saml.AuthnStatement{{SessionIndex: "session-index-1"}},
	}
	stmt := saml.AttributeStatement{}
	for name, value := range attrs {
		stmt.Attributes = append(stmt.Attributes, saml.Attribute{
			Name:   name,
			Values: []saml.AttributeValue{{Value: value}},
		})
	}
	a.AttributeStatements = []saml.AttributeStatement{stmt}
	return a
}

func TestADEmployeeResolver(t *testing.T) {
	employeeID := uuid.New()

	be := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/system/employee-login", r.URL.Path)
		var req backend.EmployeeLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ad:ad-object-id-1", req.ExternalID)
		assert.Equal(t, "Essi", req.FirstName)
		assert.Equal(t, "Esimies", req.LastName)
		_ = json.NewEncoder(w).Encode(backend.EmployeeUser{
			ID:          employeeID,
			GlobalRoles: []string{"ADMIN"},
		})
	})

	resolver := auth.ADEmployeeResolver{Backend: be}

	t.Run("maps directory claims", func(t *testing.T) {
		user, err := resolver.FromAssertion(context.Background(), assertion("transient-id", map[string]string{
			"http://schemas.microsoft.com/identity/claims/objectidentifier":      "ad-object-id-1",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname":    "Essi",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname":      "Esimies",
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress": "essi@example.com",
		}))
		require.NoError(t, err)

		assert.Equal(t, employeeID, user.ID)
		assert.Equal(t, session.UserTypeEmployee, user.Type)
		assert.Equal(t, []string{"ADMIN"}, user.GlobalRoles)
		assert.Equal(t, "transient-id", user.NameID)
		assert.Equal(t, "session-index-1", user.SessionIndex)
		assert.Equal(t, "idp.example.com", user.NameQualifier)
	})

	t.Run("missing object id aborts", func(t *testing.T) {
		_, err := resolver.FromAssertion(context.Background(), assertion("transient-id", map[string]string{
			"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname": "Essi",
		}))
		assert.ErrorIs(t, err, auth.ErrMissingClaim)
	})
}

func TestCitizenResolver(t *testing.T) {
	citizenID := uuid.New()

	be := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/system/citizen-login", r.URL.Path)
		var req backend.CitizenLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "070644-937X", req.SocialSecurityNumber)
		_ = json.NewEncoder(w).Encode(backend.CitizenUser{ID: citizenID})
	})

	resolver := auth.CitizenResolver{Backend: be}

	t.Run("maps suomi.fi claims", func(t *testing.T) {
		user, err := resolver.FromAssertion(context.Background(), assertion("transient-id", map[string]string{
			"urn:oid:1.2.246.21": "070644-937X",
			"urn:oid:2.5.4.42":   "Johannes",
			"urn:oid:2.5.4.4":    "Karhula",
		}))
		require.NoError(t, err)

		assert.Equal(t, citizenID, user.ID)
		assert.Equal(t, session.UserTypeCitizen, user.Type)
		assert.Equal(t, "transient-id", user.NameID)
	})

	t.Run("missing ssn aborts", func(t *testing.T) {
		_, err := resolver.FromAssertion(context.Background(), assertion("transient-id", map[string]string{
			"urn:oid:2.5.4.42": "Johannes",
		}))
		assert.ErrorIs(t, err, auth.ErrMissingClaim)
	})
}

func TestKeycloakEmployeeResolver(t *testing.T) {
	be := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req backend.EmployeeLoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "evaka:keycloak-subject", req.ExternalID)
		_ = json.NewEncoder(w).Encode(backend.EmployeeUser{ID: uuid.New()})
	})

	resolver := auth.KeycloakEmployeeResolver{Backend: be}

	t.Run("subject name id is the external id", func(t *testing.T) {
		user, err := resolver.FromAssertion(context.Background(), assertion("keycloak-subject", map[string]string{
			"firstName": "Essi",
			"lastName":  "Esimies",
		}))
		require.NoError(t, err)
		assert.Equal(t, session.UserTypeEmployee, user.Type)
	})

	t.Run("missing subject aborts", func(t *testing.T) {
		a := assertion("", nil)
		_, err := resolver.FromAssertion(context.Background(), a)
		assert.ErrorIs(t, err, auth.ErrMissingClaim)
	})
}

func TestDevIdentifierResolution(t *testing.T) {
	citizenID := uuid.New()

	be := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dev-api/citizen/ssn/070644-937X":
			_ = json.NewEncoder(w).Encode(backend.DevCitizen{SSN: "070644-937X", FirstName: "Johannes", LastName: "Karhula"})
		case "/system/citizen-login":
			_ = json.NewEncoder(w).Encode(backend.CitizenUser{ID: citizenID})
		default:
			http.NotFound(w, r)
		}
	})

	resolver := auth.CitizenResolver{Backend: be}

	t.Run("dev identifier ends in the same login call", func(t *testing.T) {
		user, err := resolver.FromDevIdentifier(context.Background(), "070644-937X")
		require.NoError(t, err)
		assert.Equal(t, citizenID, user.ID)
		assert.Equal(t, session.UserTypeCitizen, user.Type)
		assert.Empty(t, user.NameID, "mock logins have no SAML correlation fields")
	})

	t.Run("unknown identifier is a backend 404", func(t *testing.T) {
		_, err := resolver.FromDevIdentifier(context.Background(), "000000-0000")
		assert.True(t, backend.IsNotFound(err))
	})
}
