package backend

import "github.com/google/uuid"

// EmployeeLoginRequest carries the claims extracted from a verified
// employee SAML assertion.
type EmployeeLoginRequest struct {
	ExternalID     string `json:"externalId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email,omitempty"`
	EmployeeNumber string `json:"employeeNumber,omitempty"`
}

// EmployeeUser is the canonical employee record with its resolved role sets.
type EmployeeUser struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	GlobalRoles    []string  `json:"globalRoles"`
	AllScopedRoles []string  `json:"allScopedRoles"`
}

// CitizenLoginRequest carries the claims extracted from a verified citizen
// SAML assertion.
type CitizenLoginRequest struct {
	SocialSecurityNumber string `json:"socialSecurityNumber"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
}

// CitizenUser is the canonical citizen record.
type CitizenUser struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

// PairingValidationRequest is the challenge/response pair confirming a
// pending mobile device pairing.
type PairingValidationRequest struct {
	ChallengeKey string `json:"challengeKey"`
	ResponseKey  string `json:"responseKey"`
}

// MobileDeviceIdentity is a paired mobile device with its rotatable
// long-term token. The token is empty in responses that only identify the
// device.
type MobileDeviceIdentity struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name,omitempty"`
	LongTermToken string    `json:"longTermToken,omitempty"`
}

// PinLoginRequest verifies an employee PIN on a paired device.
type PinLoginRequest struct {
	EmployeeID uuid.UUID `json:"employeeId"`
	PIN        string    `json:"pin"`
}

// PinLoginStatus is the backend's verdict on a PIN login attempt.
type PinLoginStatus string

const (
	PinLoginSuccess   PinLoginStatus = "SUCCESS"
	PinLoginWrongPin  PinLoginStatus = "WRONG_PIN"
	PinLoginPinLocked PinLoginStatus = "PIN_LOCKED"
)

// PinLoginResponse reports the PIN login outcome.
type PinLoginResponse struct {
	Status PinLoginStatus `json:"status"`
}

// PinLogoutRequest clears the PIN login state for a device.
type PinLogoutRequest struct {
	EmployeeID uuid.UUID `json:"employeeId"`
}

// DevCitizen is a development-directory citizen used by mock logins.
type DevCitizen struct {
	SSN       string `json:"ssn"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DevEmployee is a development-directory employee used by mock logins.
type DevEmployee struct {
	ExternalID string `json:"externalId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
}
