package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/httpx"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/dmitrijs2005/libraryauth/internal/server/services"
)

const maxBodyBytes = 1 << 20

// genericLoginFailure is the only message a failed login ever produces.
const genericLoginFailure = "Incorrect username or password"

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := s.users.Register(r.Context(), req.Username, req.Password, models.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse{
		ID:        id.ID,
		Username:  id.UserName,
		FirstName: id.Profile.FirstName,
		LastName:  id.Profile.LastName,
		Email:     id.Profile.Email,
		Phone:     id.Profile.Phone,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	principal, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusBadRequest, genericLoginFailure)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	token, err := s.users.IssueToken(*principal)
	if err != nil {
		s.logger.Error(r.Context(), "error issuing token", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.users.IssueAnonymousToken()
	if err != nil {
		s.logger.Error(r.Context(), "error issuing anonymous token", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.users.ChangePassword(r.Context(), req.Username, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully."})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"username":  claims.Subject,
		"role":      string(claims.Role),
		"issuedAt":  claims.IssuedAtTime().UTC().Format(time.RFC3339),
		"expiresAt": claims.ExpiresAtTime().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps lifecycle errors to 400 field errors; anything
// else is a 500 without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteFieldErrors(w, verr.Fields)
	case errors.Is(err, common.ErrUserNotFound):
		httpx.WriteFieldErrors(w, map[string]string{"username": common.ErrUserNotFound.Error()})
	case errors.Is(err, common.ErrIncorrectCurrentPassword):
		httpx.WriteFieldErrors(w, map[string]string{"currentPassword": common.ErrIncorrectCurrentPassword.Error()})
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
