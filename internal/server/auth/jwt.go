// Package auth mints and validates the signed claim sets used as proof of
// identity on both client surfaces: bearer tokens for the stateless API and
// session cookies for the server-rendered app.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var signingMethod = jwt.SigningMethodHS256

// CreateToken signs a claim set valid from now until now+ttl with secretKey.
// Empty subject and role produce an anonymous bootstrap token.
func CreateToken(secretKey []byte, ttl time.Duration, subject string, role Role) (string, error) {
	return createToken(secretKey, ttl, subject, role, time.Now())
}

// ValidateToken verifies tokenString with secretKey and returns its claims.
//
// Errors:
//   - common.ErrTokenMalformed: not a compact three-segment token, or a
//     correctly signed payload that cannot be decoded;
//   - common.ErrTokenInvalidSignature: the signature does not verify;
//   - common.ErrTokenExpired: now is at or after the exp claim.
func ValidateToken(secretKey []byte, tokenString string) (*Claims, error) {
	return validateToken(secretKey, tokenString, time.Now())
}

func createToken(secretKey []byte, ttl time.Duration, subject string, role Role, now time.Time) (string, error) {
	if len(secretKey) == 0 {
		return "", common.ErrEmptySecret
	}
	if role != "" && !role.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownRole, role)
	}

	token := jwt.NewWithClaims(signingMethod, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func validateToken(secretKey []byte, tokenString string, now time.Time) (*Claims, error) {
	if len(secretKey) == 0 {
		return nil, common.ErrEmptySecret
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, common.ErrTokenMalformed
	}

	// The signature is checked over the raw segments before anything is
	// decoded, so a change to any byte inside a segment reports an invalid
	// signature.
	if err := verifySignature(secretKey, parts); err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid {
		return nil, common.ErrTokenMalformed
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", common.ErrTokenMalformed)
	}
	if claims.Role != "" && !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrTokenMalformed, claims.Role)
	}

	return claims, nil
}

func verifySignature(secretKey []byte, parts []string) error {
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTokenInvalidSignature, err)
	}
	if err := signingMethod.Verify(parts[0]+"."+parts[1], sig, secretKey); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTokenInvalidSignature, err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", common.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", common.ErrTokenInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
}

// Reason maps a validation error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, common.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, common.ErrEmptySecret):
		return "misconfigured"
	default:
		return "missing"
	}
}
