package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewjam/saml"

	"github.com/edukita/apigw/internal/backend"
	"github.com/edukita/apigw/internal/session"
)

// ErrMissingClaim aborts authentication when an assertion lacks a mandatory
// claim, most importantly the subject identifier.
var ErrMissingClaim = errors.New("auth: assertion is missing a mandatory claim")

// UserResolver maps a verified identity to the canonical session user.
// FromAssertion is the real SAML path; FromDevIdentifier is the mock path.
// Both end in the same backend login call, so mock and real logins produce
// identical session users.
type UserResolver interface {
	FromAssertion(ctx context.Context, assertion *saml.Assertion) (*session.User, error)
	FromDevIdentifier(ctx context.Context, identifier string) (*session.User, error)
}

// attributeValue returns the first value of the first attribute matching any
// of the given names, searching both Name and FriendlyName.
func attributeValue(assertion *saml.Assertion, names ...string) string {
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			for _, name := range names {
				if attr.Name == name || attr.FriendlyName == name {
					for _, v := range attr.Values {
						if v.Value != "" {
							return v.Value
						}
					}
				}
			}
		}
	}
	return ""
}

// samlFields copies the Single Logout correlation fields from the assertion
// subject into the session user.
func samlFields(assertion *saml.Assertion, user *session.User) {
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		user.NameID = assertion.Subject.NameID.Value
		user.NameIDFormat = assertion.Subject.NameID.Format
		user.NameQualifier = assertion.Subject.NameID.NameQualifier
		user.SPNameQualifier = assertion.Subject.NameID.SPNameQualifier
	}
	if len(assertion.AuthnStatements) > 0 {
		user.SessionIndex = assertion.AuthnStatements[0].SessionIndex
	}
}

// ADEmployeeResolver resolves employees authenticated by the internal AD
// federation. The directory object id is the stable external identifier.
type ADEmployeeResolver struct {
	Backend *backend.Client
}

const (
	adClaimObjectID  = "http://schemas.microsoft.com/identity/claims/objectidentifier"
	adClaimGivenName = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname"
	adClaimSurname   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname"
	adClaimEmail     = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
)

func (r ADEmployeeResolver) FromAssertion(ctx context.Context, assertion *saml.Assertion) (*session.User, error) {
	objectID := attributeValue(assertion, adClaimObjectID)
	if objectID == "" {
		return nil, fmt.Errorf("%w: AD object identifier", ErrMissingClaim)
	}

	return r.login(ctx, assertion, backend.EmployeeLoginRequest{
		ExternalID: "ad:" + objectID,
		FirstName:  attributeValue(assertion, adClaimGivenName),
		LastName:   attributeValue(assertion, adClaimSurname),
		Email:      attributeValue(assertion, adClaimEmail),
	})
}

func (r ADEmployeeResolver) FromDevIdentifier(ctx context.Context, identifier string) (*session.User, error) {
	dev, err := r.Backend.GetEmployeeByExternalID(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return r.login(ctx, nil, backend.EmployeeLoginRequest{
		ExternalID: dev.ExternalID,
		FirstName:  dev.FirstName,
		LastName:   dev.LastName,
		Email:      dev.Email,
	})
}

func (r ADEmployeeResolver) login(ctx context.Context, assertion *saml.Assertion, req backend.EmployeeLoginRequest) (*session.User, error) {
	employee, err := r.Backend.EmployeeLogin(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("auth: employee login: %w", err)
	}

	user := &session.User{
		ID:          employee.ID,
		Type:        session.UserTypeEmployee,
		GlobalRoles: employee.GlobalRoles,
		ScopedRoles: employee.AllScopedRoles,
	}
	if assertion != nil {
		samlFields(assertion, user)
	}
	return user, nil
}

// KeycloakEmployeeResolver resolves employees authenticated by the
// municipal Keycloak. The SAML subject is the external identifier.
type KeycloakEmployeeResolver struct {
	Backend *backend.Client
}

func (r KeycloakEmployeeResolver) FromAssertion(ctx context.Context, assertion *saml.Assertion) (*session.User, error) {
	if assertion.Subject == nil || assertion.Subject.NameID == nil || assertion.Subject.NameID.Value == "" {
		return nil, fmt.Errorf("%w: subject name id", ErrMissingClaim)
	}

	employee, err := r.Backend.EmployeeLogin(ctx, backend.EmployeeLoginRequest{
		ExternalID: "evaka:" + assertion.Subject.NameID.Value,
		FirstName:  attributeValue(assertion, "firstName", "urn:oid:2.5.4.42"),
		LastName:   attributeValue(assertion, "lastName", "urn:oid:2.5.4.4"),
		Email:      attributeValue(assertion, "email", "urn:oid:0.9.2342.19200300.100.1.3"),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: employee login: %w", err)
	}

	user := &session.User{
		ID:          employee.ID,
		Type:        session.UserTypeEmployee,
		GlobalRoles: employee.GlobalRoles,
		ScopedRoles: employee.AllScopedRoles,
	}
	samlFields(assertion, user)
	return user, nil
}

func (r KeycloakEmployeeResolver) FromDevIdentifier(ctx context.Context, identifier string) (*session.User, error) {
	return ADEmployeeResolver{Backend: r.Backend}.FromDevIdentifier(ctx, identifier)
}

// CitizenResolver resolves citizens authenticated by suomi.fi or the
// citizen Keycloak. The social security number claim is mandatory.
type CitizenResolver struct {
	Backend *backend.Client
}

const (
	sfiClaimSSN       = "urn:oid:1.2.246.21"
	sfiClaimGivenName = "urn:oid:2.5.4.42"
	sfiClaimSurname   = "urn:oid:2.5.4.4"
)

func (r CitizenResolver) FromAssertion(ctx context.Context, assertion *saml.Assertion) (*session.User, error) {
	ssn := attributeValue(assertion, sfiClaimSSN, "nationalIdentificationNumber")
	if ssn == "" {
		return nil, fmt.Errorf("%w: social security number", ErrMissingClaim)
	}

	return r.login(ctx, assertion, backend.CitizenLoginRequest{
		SocialSecurityNumber: ssn,
		FirstName:            attributeValue(assertion, sfiClaimGivenName, "firstName"),
		LastName:             attributeValue(assertion, sfiClaimSurname, "lastName"),
	})
}

func (r CitizenResolver) FromDevIdentifier(ctx context.Context, identifier string) (*session.User, error) {
	dev, err := r.Backend.GetCitizenBySSN(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return r.login(ctx, nil, backend.CitizenLoginRequest{
		SocialSecurityNumber: dev.SSN,
		FirstName:            dev.FirstName,
		LastName:             dev.LastName,
	})
}

func (r CitizenResolver) login(ctx context.Context, assertion *saml.Assertion, req backend.CitizenLoginRequest) (*session.User, error) {
	citizen, err := r.Backend.CitizenLogin(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("auth: citizen login: %w", err)
	}

	user := &session.User{
		ID:   citizen.ID,
		Type: session.UserTypeCitizen,
	}
	if assertion != nil {
		samlFields(assertion, user)
	}
	return user, nil
}
