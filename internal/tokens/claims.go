package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

func (t TokenType) Valid() bool {
	return t == TypeAccess || t == TypeRefresh
}

// Claims is the payload of both token kinds. Refresh tokens leave the name
// fields empty.
type Claims struct {
	Type      TokenType `json:"type"`
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the expiry or the zero time when the claim is absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Pair is what a successful issue or refresh hands back to the HTTP layer.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
