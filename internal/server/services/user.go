// Package services contains server-side business logic. This file implements
// UserService, which handles the credential lifecycle: registration, login,
// password changes and turning an authenticated principal into a signed
// token.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/cryptox"
	"github.com/dmitrijs2005/libraryauth/internal/dbx"
	"github.com/dmitrijs2005/libraryauth/internal/logging"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/config"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	"github.com/dmitrijs2005/libraryauth/internal/server/repositories/repomanager"
)

// UserService provides the credential lifecycle:
//   - Register / Seed: create credentials with a fresh salt and hash
//   - Login: verify a password and return the stored principal
//   - ChangePassword: re-verify and replace salt and hash together
//   - IssueToken / IssueAnonymousToken: mint API bearer tokens
//
// Tokens already issued stay valid until they expire, even after a
// password change.
type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	tokens       *auth.Provider
	tokenTTL     time.Duration
	anonymousTTL time.Duration
	logger       logging.Logger
	metrics      *metrics.Metrics

	dummyOnce sync.Once
	dummySalt string
	dummyHash string
}

type UserServiceOption func(*UserService)

func WithLogger(l logging.Logger) UserServiceOption {
	return func(s *UserService) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) UserServiceOption {
	return func(s *UserService) { s.metrics = m }
}

// NewUserService constructs a UserService using repositories, the token
// provider and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.Provider, cfg *config.Config, opts ...UserServiceOption) *UserService {
	s := &UserService{
		db:           db,
		repomanager:  m,
		tokens:       tokens,
		tokenTTL:     cfg.TokenTTL,
		anonymousTTL: cfg.AnonymousTokenTTL,
		logger:       logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "users")
	return s
}

// Register creates a User credential. The username is trimmed before it is
// checked for uniqueness and stored.
func (s *UserService) Register(ctx context.Context, userName, password string, profile models.Profile) (*Identity, error) {
	identity, err := s.create(ctx, userName, password, auth.RoleUser, profile)
	s.metrics.Registration(outcome(err))
	return identity, err
}

// Seed creates a credential with an explicit role. It backs the admin CLI
// that provisions the first Admin account.
func (s *UserService) Seed(ctx context.Context, userName, password string, role auth.Role) (*Identity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownRole, role)
	}
	return s.create(ctx, userName, password, role, models.Profile{})
}

func (s *UserService) create(ctx context.Context, userName, password string, role auth.Role, profile models.Profile) (*Identity, error) {
	name := strings.TrimSpace(userName)

	repo := s.repomanager.Users(s.db)

	// A taken name is reported before the password policy.
	var v validation
	if name == "" {
		v.add("username", common.ErrUsernameRequired)
	} else {
		_, err := repo.GetUserByLogin(ctx, name)
		switch {
		case err == nil:
			s.logger.Warn(ctx, "username already exists", "username", name)
			return nil, duplicate()
		case !errors.Is(err, common.ErrorNotFound):
			s.logger.Error(ctx, "error looking up user", "error", err)
			return nil, common.ErrorInternal
		}
	}
	if utf8.RuneCountInString(password) < common.MinPasswordLength {
		v.add("password", common.ErrPasswordTooShort)
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		s.logger.Error(ctx, "error generating salt", "error", err)
		return nil, common.ErrorInternal
	}
	hash, err := cryptox.ComputeHash(password, salt)
	if err != nil {
		s.logger.Error(ctx, "error hashing password", "error", err)
		return nil, common.ErrorInternal
	}

	u, err := repo.Create(ctx, &models.User{
		UserName:     name,
		PasswordSalt: salt,
		PasswordHash: hash,
		Role:         string(role),
		Profile:      profile,
	})
	if err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, common.ErrDuplicateUsername) {
			s.logger.Warn(ctx, "username already exists", "username", name)
			return nil, duplicate()
		}
		s.logger.Error(ctx, "error creating user", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "registered user", "user_id", u.ID, "role", u.Role)
	return identityOf(u), nil
}

func duplicate() error {
	var v validation
	v.add("username", common.ErrDuplicateUsername)
	return v.err()
}

// Login verifies password for userName and returns the stored principal.
// Unknown users and wrong passwords both yield common.ErrInvalidCredentials;
// for unknown users a hash is still computed so both paths cost the same.
func (s *UserService) Login(ctx context.Context, userName, password string) (*auth.Principal, error) {
	principal, err := s.login(ctx, strings.TrimSpace(userName), password)
	s.metrics.Login(outcome(err))
	return principal, err
}

func (s *UserService) login(ctx context.Context, userName, password string) (*auth.Principal, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnHash(password)
			s.logger.Warn(ctx, "login attempt failed", "reason", "user not found")
			return nil, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "error looking up user", "error", err)
		return nil, common.ErrorInternal
	}

	ok, err := cryptox.VerifyHash(password, user.PasswordSalt, user.PasswordHash)
	if err != nil {
		// Operators see the corruption; the caller only sees a failed login.
		s.logger.Error(ctx, "stored credential is corrupt", "user_id", user.ID, "error", err)
		return nil, common.ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn(ctx, "login attempt failed", "reason", common.ErrHashMismatch.Error(), "user_id", user.ID)
		return nil, common.ErrInvalidCredentials
	}

	role, err := auth.ParseRole(user.Role)
	if err != nil {
		s.logger.Error(ctx, "stored role is unknown", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &auth.Principal{Subject: user.UserName, Role: role}, nil
}

// burnHash runs the same KDF as a real verification against a throwaway
// credential.
func (s *UserService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		secret, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		salt, err := cryptox.GenerateSalt()
		if err != nil {
			return
		}
		hash, err := cryptox.ComputeHash(secret, salt)
		if err != nil {
			return
		}
		s.dummySalt, s.dummyHash = salt, hash
	})
	if s.dummySalt == "" {
		return
	}
	_, _ = cryptox.VerifyHash(password, s.dummySalt, s.dummyHash)
}

// ChangePassword replaces the password of userName after re-verifying the
// current one. Salt and hash are regenerated and written together; nothing
// is written on any failure.
func (s *UserService) ChangePassword(ctx context.Context, userName, currentPassword, newPassword string) error {
	err := s.changePassword(ctx, strings.TrimSpace(userName), currentPassword, newPassword)
	s.metrics.PasswordChange(outcome(err))
	return err
}

func (s *UserService) changePassword(ctx context.Context, userName, currentPassword, newPassword string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetUserByLogin(ctx, userName)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				s.logger.Warn(ctx, "change password attempt failed", "reason", "user not found")
				return common.ErrUserNotFound
			}
			s.logger.Error(ctx, "error looking up user", "error", err)
			return common.ErrorInternal
		}

		ok, err := cryptox.VerifyHash(currentPassword, user.PasswordSalt, user.PasswordHash)
		if err != nil {
			s.logger.Error(ctx, "stored credential is corrupt", "user_id", user.ID, "error", err)
			return common.ErrIncorrectCurrentPassword
		}
		if !ok {
			s.logger.Warn(ctx, "change password attempt failed", "reason", "incorrect current password", "user_id", user.ID)
			return common.ErrIncorrectCurrentPassword
		}

		if utf8.RuneCountInString(newPassword) < common.MinPasswordLength {
			var v validation
			v.add("newPassword", common.ErrPasswordTooShort)
			return v.err()
		}

		salt, err := cryptox.GenerateSalt()
		if err != nil {
			s.logger.Error(ctx, "error generating salt", "error", err)
			return common.ErrorInternal
		}
		hash, err := cryptox.ComputeHash(newPassword, salt)
		if err != nil {
			s.logger.Error(ctx, "error hashing password", "error", err)
			return common.ErrorInternal
		}

		if err := repo.UpdatePassword(ctx, user.UserName, salt, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrUserNotFound
			}
			s.logger.Error(ctx, "error updating password", "error", err)
			return common.ErrorInternal
		}

		s.logger.Info(ctx, "user changed password", "user_id", user.ID)
		return nil
	})
}

// Profile returns the stored identity of userName.
func (s *UserService) Profile(ctx context.Context, userName string) (*Identity, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		s.logger.Error(ctx, "error looking up user", "error", err)
		return nil, common.ErrorInternal
	}
	return identityOf(user), nil
}

// IssueToken mints an API bearer token for an authenticated principal.
func (s *UserService) IssueToken(principal auth.Principal) (string, error) {
	return s.tokens.CreateToken(s.tokenTTL, principal)
}

// IssueAnonymousToken mints a short-lived token with no subject or role.
func (s *UserService) IssueAnonymousToken() (string, error) {
	return s.tokens.CreateToken(s.anonymousTTL, auth.Principal{})
}

// outcome maps a lifecycle error to a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, common.ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, common.ErrPasswordTooShort):
		return "password_too_short"
	case errors.Is(err, common.ErrUsernameRequired):
		return "username_required"
	case errors.Is(err, common.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, common.ErrIncorrectCurrentPassword):
		return "incorrect_current_password"
	default:
		return "error"
	}
}
