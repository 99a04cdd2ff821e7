package accounts

import (
	"github.com/golang-jwt/jwt/v5"
)

// ActivationClaims is the payload of an activation token
type ActivationClaims struct {
	jwt.RegisteredClaims
	User           PendingRegistration `json:"user"`
	ActivationCode string              `json:"activationCode"`
}

// AccountClaims is the payload of access and refresh tokens
type AccountClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"id"`
}

// UserID returns the account id, falling back to the subject
func (c *AccountClaims) UserID() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return c.Subject
}
