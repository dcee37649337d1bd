// Package api is the stateless JSON surface. Clients obtain a bearer token
// from /api/user/login (or an anonymous one from /api/user/gettoken) and
// present it in the Authorization header on protected routes.
package api

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/authz"
	"github.com/dmitrijs2005/libraryauth/internal/server/httpx"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
)

// UserService is the part of services.UserService the API surface needs.
type UserService interface {
	Register(ctx context.Context, userName, password string, profile models.Profile) (*services.Identity, error)
	Login(ctx context.Context, userName, password string) (*auth.Principal, error)
	ChangePassword(ctx context.Context, userName, currentPassword, newPassword string) error
	IssueToken(principal auth.Principal) (string, error)
	IssueAnonymousToken() (string, error)
}

type Server struct {
	mux    *http.ServeMux
	gate   *authz.Gate
	users  UserService
	logger logging.Logger
}

// NewServer registers the account routes, /healthz and, when gatherer is
// not nil, /metrics.
func NewServer(users UserService, gate *authz.Gate, gatherer prometheus.Gatherer, logger logging.Logger) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		gate:   gate,
		users:  users,
		logger: logger.With("module", "api"),
	}

	s.mux.HandleFunc("GET /healthz", httpx.Health)
	if gatherer != nil {
		s.mux.Handle("GET /metrics", metrics.Handler(gatherer))
	}

	s.Mount("POST /api/user/register", authz.Public(), http.HandlerFunc(s.register))
	s.Mount("POST /api/user/login", authz.Public(), http.HandlerFunc(s.login))
	s.Mount("GET /api/user/gettoken", authz.Public(), http.HandlerFunc(s.getToken))
	s.Mount("POST /api/user/changepassword", authz.Public(), http.HandlerFunc(s.changePassword))
	s.Mount("GET /api/user/me", authz.Authenticated(), http.HandlerFunc(s.me))

	return s
}

// Mount attaches h at pattern behind the bearer-token gate. Catalog routes
// register themselves this way, e.g.
//
//	s.Mount("POST /api/book", authz.Role(auth.RoleAdmin), createBook)
func (s *Server) Mount(pattern string, req authz.Requirement, h http.Handler) {
	s.mux.Handle(pattern, s.gate.Require(req, h))
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return httpx.Logging(s.logger, s.mux)
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	return httpx.Serve(ctx, addr, s.Handler(), s.logger)
}
