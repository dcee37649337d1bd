package auth

import (
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/common"
)

// Provider binds the shared signing secret, loaded once from configuration,
// to token creation and validation.
type Provider struct {
	secret []byte
	now    func() time.Time
}

// ProviderOption customizes a Provider.
type ProviderOption func(*Provider)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// NewProvider returns a Provider signing with a private copy of secret.
func NewProvider(secret []byte, opts ...ProviderOption) (*Provider, error) {
	if len(secret) == 0 {
		return nil, common.ErrEmptySecret
	}
	p := &Provider{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CreateToken mints a token for principal that expires after ttl.
// A zero Principal yields an anonymous token.
func (p *Provider) CreateToken(ttl time.Duration, principal Principal) (string, error) {
	return createToken(p.secret, ttl, principal.Subject, principal.Role, p.now())
}

// ValidateToken verifies token against the provider's secret and clock.
func (p *Provider) ValidateToken(token string) (*Claims, error) {
	return validateToken(p.secret, token, p.now())
}

// Now returns the provider's current time.
func (p *Provider) Now() time.Time {
	return p.now()
}
