package common

import "time"

// AuthorizationHeaderName is the HTTP header / gRPC metadata key carrying the
// bearer token on the stateless surface.
const AuthorizationHeaderName = "authorization"

// BearerScheme is the authorization scheme prefix expected in
// AuthorizationHeaderName values.
const BearerScheme = "Bearer"

// SessionCookieName is the default name of the signed session cookie used by
// the server-rendered surface.
const SessionCookieName = "library_session"

// MinPasswordLength is the password length policy enforced by the credential
// lifecycle (not by the hash provider).
const MinPasswordLength = 8

// Default proof lifetimes.
const (
	DefaultTokenTTL          = 120 * time.Minute
	DefaultAnonymousTokenTTL = 10 * time.Minute
	DefaultSessionTTL        = 120 * time.Minute
)
