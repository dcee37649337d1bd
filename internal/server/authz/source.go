package authz

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
)

// Source extracts the raw proof (a signed token) from a request.
type Source func(r *http.Request) (string, bool)

// BearerToken reads "Authorization: Bearer <token>". The scheme is matched
// case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	return ParseBearer(r.Header.Get(common.AuthorizationHeaderName))
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// CookieSource reads the session cookie described by c.
func CookieSource(c auth.SessionCookie) Source {
	return c.Read
}
