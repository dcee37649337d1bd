package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/httpx"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
)

// Verifier validates a raw token. *auth.Provider satisfies it.
type Verifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// DeniedHandler writes the response for a request that failed authorization.
// err matches either common.ErrorUnauthorized or common.ErrorForbidden.
type DeniedHandler func(w http.ResponseWriter, r *http.Request, err error)

// Gate checks requests of one surface against requirements.
type Gate struct {
	surface  string
	verifier Verifier
	source   Source
	logger   logging.Logger
	metrics  *metrics.Metrics
	denied   DeniedHandler
}

type Option func(*Gate)

func WithLogger(l logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithDeniedHandler(h DeniedHandler) Option {
	return func(g *Gate) { g.denied = h }
}

// NewGate builds a gate for surface ("api", "web") reading proof from source.
func NewGate(surface string, v Verifier, source Source, opts ...Option) *Gate {
	g := &Gate{
		surface:  surface,
		verifier: v,
		source:   source,
		logger:   logging.NopLogger{},
		denied:   WriteDenied,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("module", "authz", "surface", surface)
	return g
}

// Check validates the proof carried by r and authorizes it against req.
// For Public requirements a valid proof is still returned so handlers can
// personalise responses, but a missing or invalid one is not an error.
func (g *Gate) Check(r *http.Request, req Requirement) (*auth.Claims, error) {
	claims, verr := g.verify(r)
	if req.IsPublic() {
		if verr != nil {
			return nil, nil
		}
		return claims, nil
	}

	if verr != nil {
		g.metrics.Decision(g.surface, "unauthenticated")
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, verr)
	}

	if err := Authorize(claims, req); err != nil {
		if errors.Is(err, common.ErrorForbidden) {
			g.metrics.Decision(g.surface, "forbidden")
			g.logger.Warn(r.Context(), "access denied",
				"subject", claims.Subject, "role", string(claims.Role), "requirement", req.String(), "path", r.URL.Path)
		} else {
			g.metrics.Decision(g.surface, "unauthenticated")
		}
		return nil, err
	}

	g.metrics.Decision(g.surface, "allow")
	return claims, nil
}

func (g *Gate) verify(r *http.Request) (*auth.Claims, error) {
	token, ok := g.source(r)
	if !ok {
		g.metrics.TokenValidation(g.surface, "missing")
		return nil, errMissingProof
	}
	claims, err := g.verifier.ValidateToken(token)
	g.metrics.TokenValidation(g.surface, auth.Reason(err))
	if err != nil {
		g.logger.Debug(r.Context(), "token rejected", "reason", auth.Reason(err), "path", r.URL.Path)
		return nil, err
	}
	return claims, nil
}

var errMissingProof = errors.New("no credentials presented")

// Require wraps next so it only runs when req is satisfied. The verified
// claim set is bound to the request context (see auth.ClaimsFromContext).
func (g *Gate) Require(req Requirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Check(r, req)
		if err != nil {
			g.denied(w, r, err)
			return
		}
		if claims != nil {
			r = r.WithContext(BindClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// BindClaims stores claims on ctx and, for a signed-in caller, tags later
// log lines with the subject.
func BindClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = auth.WithClaims(ctx, claims)
	if !claims.Anonymous() {
		ctx = logging.WithFields(ctx, "subject", claims.Subject)
	}
	return ctx
}

func (g *Gate) RequireFunc(req Requirement, next http.HandlerFunc) http.Handler {
	return g.Require(req, next)
}

// WriteDenied is the JSON denial used by the API surface.
func WriteDenied(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, common.ErrorForbidden) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("WWW-Authenticate", common.BearerScheme)
	httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
}

// RedirectToLogin sends unauthenticated browsers to loginPath, remembering
// where they were headed in the ReturnUrl query parameter. Forbidden
// requests get a plain 403.
func RedirectToLogin(loginPath string) DeniedHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, common.ErrorForbidden) {
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}
		target := loginPath + "?" + url.Values{"ReturnUrl": {r.URL.RequestURI()}}.Encode()
		http.Redirect(w, r, target, http.StatusFound)
	}
}
