package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Role is a flat authorization role. Roles do not imply each other.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Valid reports whether r belongs to the closed set of known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// ParseRole matches s exactly (case-sensitive) against the known roles.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownRole, s)
	}
	return r, nil
}

// Principal is an authenticated identity: who the caller is and which role
// the credential store assigned to them.
type Principal struct {
	Subject string
	Role    Role
}

// Claims is the signed, time-boxed claim set carried either by a bearer
// token or by the session cookie. Only the standard sub/iat/exp registered
// claims are used, plus a private role claim.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role,omitempty"`
}

// Anonymous reports whether the claim set was minted without a subject
// (the bootstrap token handed out to unauthenticated clients).
func (c *Claims) Anonymous() bool {
	return c.Subject == ""
}

// Principal returns the identity carried by the claim set.
func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Subject, Role: c.Role}
}

// IssuedAtTime returns the iat claim or the zero time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the exp claim or the zero time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
