package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/httpx"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
)

const genericLoginFailure = "Incorrect username or password"

// loginPage tells the browser where to post credentials. Rendering the
// actual form belongs to the page layer.
func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"action":    s.loginPath,
		"returnUrl": returnURL(r),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	principal, err := s.users.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			http.Error(w, genericLoginFailure, http.StatusBadRequest)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	cookie, err := s.cookie.Establish(s.tokens, *principal)
	if err != nil {
		s.logger.Error(r.Context(), "error establishing session", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, cookie)

	target := returnURL(r)
	if !isLocalURL(target) {
		target = landingFor(principal.Role)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.cookie.Clear())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	_, err := s.users.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"), models.Profile{
		FirstName: r.PostFormValue("firstName"),
		LastName:  r.PostFormValue("lastName"),
		Email:     r.PostFormValue("email"),
		Phone:     r.PostFormValue("phone"),
	})
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteFieldErrors(w, verr.Fields)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, s.loginPath, http.StatusFound)
		return
	}

	id, err := s.users.Profile(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, id)
}

// returnURL reads the requested post-login destination from the form or
// the query string. Both returnUrl and ReturnUrl spellings are accepted.
func returnURL(r *http.Request) string {
	for _, key := range []string{"returnUrl", "ReturnUrl"} {
		if v := r.FormValue(key); v != "" {
			return v
		}
	}
	return ""
}

// isLocalURL admits only same-origin absolute paths, rejecting
// protocol-relative ("//host") and backslash ("/\host") forms.
func isLocalURL(raw string) bool {
	if raw == "" || raw[0] != '/' {
		return false
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return false
	}
	if strings.ContainsAny(raw, "\r\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func landingFor(role auth.Role) string {
	if role == auth.RoleAdmin {
		return AdminLanding
	}
	return UserLanding
}
