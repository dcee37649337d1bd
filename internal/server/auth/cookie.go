package auth

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookie describes how the server-rendered surface transports a
// signed claim set. The cookie value is a token produced by Provider, so a
// cookie and a bearer token are verified the same way.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Establish signs a claim set for principal and returns the Set-Cookie
// directive that signs the browser in.
func (c SessionCookie) Establish(p *Provider, principal Principal) (*http.Cookie, error) {
	token, err := p.CreateToken(c.TTL, principal)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Expires:  p.Now().Add(c.TTL),
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Clear returns the Set-Cookie directive that signs the browser out.
func (c SessionCookie) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Read returns the trimmed cookie value when present.
func (c SessionCookie) Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}
