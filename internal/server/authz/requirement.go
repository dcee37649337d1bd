// Package authz enforces declarative access requirements on HTTP handlers.
// The same claim set abstraction backs bearer tokens (API surface) and the
// session cookie (web surface).
package authz

import (
	"strings"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
)

type kind int

const (
	kindPublic kind = iota
	kindAnyToken
	kindAuthenticated
	kindRole
)

// Requirement describes what a caller must prove to reach an operation.
// The zero value is Public.
type Requirement struct {
	kind  kind
	roles []auth.Role
}

// Public admits every caller.
func Public() Requirement { return Requirement{kind: kindPublic} }

// AnyToken admits any validly signed, unexpired claim set, including the
// anonymous bootstrap token.
func AnyToken() Requirement { return Requirement{kind: kindAnyToken} }

// Authenticated admits callers whose claim set carries a subject.
func Authenticated() Requirement { return Requirement{kind: kindAuthenticated} }

// Role admits authenticated callers whose role exactly matches one of roles.
// Role() with no roles admits nobody.
func Role(roles ...auth.Role) Requirement {
	return Requirement{kind: kindRole, roles: append([]auth.Role(nil), roles...)}
}

// IsPublic reports whether the requirement needs no proof at all.
func (r Requirement) IsPublic() bool { return r.kind == kindPublic }

func (r Requirement) String() string {
	switch r.kind {
	case kindAnyToken:
		return "any-token"
	case kindAuthenticated:
		return "authenticated"
	case kindRole:
		names := make([]string, len(r.roles))
		for i, role := range r.roles {
			names[i] = string(role)
		}
		return "role(" + strings.Join(names, ",") + ")"
	default:
		return "public"
	}
}

// Authorize decides whether claims satisfy req. It returns nil,
// common.ErrorUnauthorized when proof is missing or insufficient to identify
// the caller, or common.ErrorForbidden when the caller is known but holds the
// wrong role.
func Authorize(claims *auth.Claims, req Requirement) error {
	if req.kind == kindPublic {
		return nil
	}
	if claims == nil {
		return common.ErrorUnauthorized
	}

	switch req.kind {
	case kindAnyToken:
		return nil
	case kindAuthenticated:
		if claims.Anonymous() {
			return common.ErrorUnauthorized
		}
		return nil
	case kindRole:
		if claims.Anonymous() {
			return common.ErrorUnauthorized
		}
		for _, role := range req.roles {
			if claims.Role == role {
				return nil
			}
		}
		return common.ErrorForbidden
	}

	return common.ErrorForbidden
}
