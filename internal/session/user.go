package session

import "github.com/google/uuid"

// UserType classifies the authenticated principal.
type UserType string

const (
	UserTypeCitizen  UserType = "CITIZEN"
	UserTypeEmployee UserType = "EMPLOYEE"
	UserTypeMobile   UserType = "MOBILE"
)

// User is the canonical session user record. The gateway never computes
// roles itself; they come from the backend login endpoints verbatim.
//
// The SAML correlation fields are kept so a later Single Logout request can
// be matched back to this session.
type User struct {
	ID          uuid.UUID `json:"id"`
	Type        UserType  `json:"userType"`
	GlobalRoles []string  `json:"globalRoles,omitempty"`
	ScopedRoles []string  `json:"allScopedRoles,omitempty"`

	// SAML Single Logout correlation fields.
	NameID          string `json:"nameId,omitempty"`
	NameIDFormat    string `json:"nameIdFormat,omitempty"`
	NameQualifier   string `json:"nameQualifier,omitempty"`
	SPNameQualifier string `json:"spNameQualifier,omitempty"`
	SessionIndex    string `json:"sessionIndex,omitempty"`

	// EmployeeID is set on mobile sessions after a successful PIN login.
	EmployeeID *uuid.UUID `json:"employeeId,omitempty"`
}
