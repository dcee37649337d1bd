// Package cryptox implements salted password hashing for stored credentials.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// Fixed KDF parameters. Changing any of them invalidates every stored hash.
const (
	SaltSize   = 16
	KeySize    = 32
	Iterations = 100_000
)

var encoding = base64.StdEncoding

// GenerateSalt returns SaltSize random bytes from crypto/rand, base64 encoded
// for storage. A new salt must be generated for every hash computation.
func GenerateSalt() (string, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encoding.EncodeToString(salt), nil
}

// ComputeHash derives a PBKDF2-HMAC-SHA256 key from password and the encoded
// salt and returns it base64 encoded.
//
// The result is deterministic for identical inputs. An empty salt, a salt
// that is not valid base64, or one that decodes to fewer than SaltSize bytes
// is rejected with common.ErrInvalidSalt before any work is done.
//
// Example:
//
//	salt, err := cryptox.GenerateSalt()
//	if err != nil {
//	    return err
//	}
//	hash, err := cryptox.ComputeHash("longenough1", salt)
func ComputeHash(password, salt string) (string, error) {
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), rawSalt, Iterations, KeySize, sha256.New)
	return encoding.EncodeToString(key), nil
}

// VerifyHash recomputes the hash of password under salt and compares it with
// the stored hash in constant time.
//
// It returns (true, nil) on match and (false, nil) on mismatch. Errors are
// reserved for malformed stored values (common.ErrInvalidSalt,
// common.ErrInvalidHash). Login reports them to clients as
// common.ErrInvalidCredentials and password change as
// common.ErrIncorrectCurrentPassword, logging the corruption server-side.
func VerifyHash(password, salt, hash string) (bool, error) {
	expected, err := encoding.DecodeString(hash)
	if err != nil || len(expected) != KeySize {
		return false, common.ErrInvalidHash
	}

	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), rawSalt, Iterations, KeySize, sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func decodeSalt(salt string) ([]byte, error) {
	if salt == "" {
		return nil, common.ErrInvalidSalt
	}
	raw, err := encoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSalt, err)
	}
	if len(raw) < SaltSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", common.ErrInvalidSalt, len(raw), SaltSize)
	}
	return raw, nil
}

// randomBytes is a seam for tests that need to observe salt generation.
var randomBytes = func(n int) ([]byte, error) {
	return common.GenerateRandByteArray(n), nil
}
