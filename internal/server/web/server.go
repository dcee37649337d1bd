// Package web is the server-rendered surface. A successful sign-in stores
// the signed claim set in an HttpOnly session cookie; protected pages
// redirect anonymous browsers to the login path.
package web

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	"github.com/dmitrijs2005/libraryauth/internal/server/httpx"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
)

// Landing pages after sign-in when no return URL was requested.
const (
	AdminLanding = "/book"
	UserLanding  = "/book/search"
)

// UserService is the part of services.UserService the web surface needs.
type UserService interface {
	Register(ctx context.Context, userName, password string, profile models.Profile) (*services.Identity, error)
	Login(ctx context.Context, userName, password string) (*auth.Principal, error)
	Profile(ctx context.Context, userName string) (*services.Identity, error)
}

type Server struct {
	mux       *http.ServeMux
	gate      *authz.Gate
	users     UserService
	tokens    *auth.Provider
	cookie    auth.SessionCookie
	loginPath string
	logger    logging.Logger
}

// NewServer wires the account pages. The gate should read proof from
// authz.CookieSource(cookie) and deny with authz.RedirectToLogin(loginPath).
func NewServer(users UserService, tokens *auth.Provider, cookie auth.SessionCookie, gate *authz.Gate, loginPath string, logger logging.Logger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		gate:      gate,
		users:     users,
		tokens:    tokens,
		cookie:    cookie,
		loginPath: loginPath,
		logger:    logger.With("module", "web"),
	}

	s.mux.HandleFunc("GET /healthz", httpx.Health)

	s.Mount("GET "+loginPath, authz.Public(), http.HandlerFunc(s.loginPage))
	s.Mount("POST "+loginPath, authz.Public(), http.HandlerFunc(s.login))
	s.Mount("GET /user/logout", authz.Public(), http.HandlerFunc(s.logout))
	s.Mount("POST /user/logout", authz.Public(), http.HandlerFunc(s.logout))
	s.Mount("POST /user/register", authz.Public(), http.HandlerFunc(s.register))
	s.Mount("GET /user/profile", authz.Authenticated(), http.HandlerFunc(s.profile))

	return s
}

// Mount attaches h at pattern behind the session-cookie gate.
func (s *Server) Mount(pattern string, req authz.Requirement, h http.Handler) {
	s.mux.Handle(pattern, s.gate.Require(req, h))
}

func (s *Server) Handler() http.Handler {
	return httpx.Logging(s.logger, s.mux)
}

// Run serves the web surface on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	return httpx.Serve(ctx, addr, s.Handler(), s.logger)
}
