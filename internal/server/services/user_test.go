package services

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/libraryauth/internal/common"
	"github.com/dmitrijs2005/libraryauth/internal/cryptox"
	"github.com/dmitrijs2005/libraryauth/internal/dbx"
	"github.com/dmitrijs2005/libraryauth/internal/server/auth"
	"github.com/dmitrijs2005/libraryauth/internal/server/config"
	"github.com/dmitrijs2005/libraryauth/internal/server/metrics"
	"github.com/dmitrijs2005/libraryauth/internal/server/models"
	usersrepo "github.com/dmitrijs2005/libraryauth/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type memUsersRepo struct {
	mu      sync.Mutex
	users   map[string]models.User
	nextID  int
	getErr  error
	updErr  error
	creates int
	updates int
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{users: make(map[string]models.User)}
}

func (r *memUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.UserName]; ok {
		return nil, common.ErrDuplicateUsername
	}
	r.nextID++
	r.creates++
	created := *u
	created.ID = strconv.Itoa(r.nextID)
	r.users[u.UserName] = created
	return &created, nil
}

func (r *memUsersRepo) GetUserByLogin(_ context.Context, userName string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[userName]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *memUsersRepo) UpdatePassword(_ context.Context, userName, salt, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updErr != nil {
		return r.updErr
	}
	u, ok := r.users[userName]
	if !ok {
		return common.ErrorNotFound
	}
	r.updates++
	u.PasswordSalt, u.PasswordHash = salt, hash
	r.users[userName] = u
	return nil
}

type fakeRepoManager struct {
	u *memUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository        { return m.u }

var testSecret = []byte("users-test-secret")

func newTestConfig() *config.Config {
	return &config.Config{
		SecretKey:         string(testSecret),
		TokenTTL:          120 * time.Minute,
		AnonymousTokenTTL: 10 * time.Minute,
	}
}

func newUserService(t *testing.T, db *sql.DB, repo *memUsersRepo, opts ...UserServiceOption) *UserService {
	t.Helper()
	p, err := auth.NewProvider(testSecret)
	require.NoError(t, err)
	return NewUserService(db, &fakeRepoManager{u: repo}, p, newTestConfig(), opts...)
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func seedUser(t *testing.T, repo *memUsersRepo, name, password string, role auth.Role) {
	t.Helper()
	salt, err := cryptox.GenerateSalt()
	require.NoError(t, err)
	hash, err := cryptox.ComputeHash(password, salt)
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), &models.User{UserName: name, PasswordSalt: salt, PasswordHash: hash, Role: string(role)})
	require.NoError(t, err)
}

// --- Register ---

func TestRegister_StoresTrimmedUserWithSaltedHash(t *testing.T) {
	repo := newMemUsersRepo()
	s := newUserService(t, nil, repo)

	id, err := s.Register(context.Background(), "  bob  ", "Secret123", models.Profile{Email: "bob@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "bob", id.UserName)
	assert.Equal(t, auth.RoleUser, id.Role)
	assert.Equal(t, "bob@example.com", id.Profile.Email)

	stored := repo.users["bob"]
	assert.NotEmpty(t, stored.PasswordSalt)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)
	ok, err := cryptox.VerifyHash("Secret123", stored.PasswordSalt, stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegister_DuplicateAfterTrim(t *testing.T) {
	repo := newMemUsersRepo()
	s := newUserService(t, nil, repo)

	_, err := s.Register(context.Background(), "alice", "Password1", models.Profile{})
	require.NoError(t, err)

	_, err = s.Register(context.Background(), " alice ", "Password2", models.Profile{})
	require.ErrorIs(t, err, common.ErrDuplicateUsername)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")
	assert.Equal(t, 1, repo.creates)
}

func TestRegister_DuplicateReportedBeforePasswordPolicy(t *testing.T) {
	repo := newMemUsersRepo()
	s := newUserService(t, nil, repo)

	_, err := s.Register(context.Background(), "alice", "Password1", models.Profile{})
	require.NoError(t, err)

	_, err = s.Register(context.Background(), " alice ", "short", models.Profile{})
	require.ErrorIs(t, err, common.ErrDuplicateUsername)
	assert.NotErrorIs(t, err, common.ErrPasswordTooShort)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"username": common.ErrDuplicateUsername.Error()}, verr.Fields)
	assert.Equal(t, 1, repo.creates)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name       string
		userName   string
		password   string
		wantErrs   []error
		wantFields []string
	}{
		{name: "short password", userName: "carol", password: "short", wantErrs: []error{common.ErrPasswordTooShort}, wantFields: []string{"password"}},
		{name: "seven characters", userName: "carol", password: "1234567", wantErrs: []error{common.ErrPasswordTooShort}, wantFields: []string{"password"}},
		{name: "multibyte counted by rune", userName: "carol", password: "ééééééé", wantErrs: []error{common.ErrPasswordTooShort}, wantFields: []string{"password"}},
		{name: "blank username", userName: "   ", password: "Password1", wantErrs: []error{common.ErrUsernameRequired}, wantFields: []string{"username"}},
		{name: "both", userName: "", password: "x", wantErrs: []error{common.ErrUsernameRequired, common.ErrPasswordTooShort}, wantFields: []string{"username", "password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemUsersRepo()
			s := newUserService(t, nil, repo)

			_, err := s.Register(context.Background(), tt.userName, tt.password, models.Profile{})
			for _, want := range tt.wantErrs {
				assert.ErrorIs(t, err, want)
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.wantFields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Zero(t, repo.creates, "nothing stored on validation failure")
		})
	}
}

func TestRegister_EightRunesAccepted(t *testing.T) {
	s := newUserService(t, nil, newMemUsersRepo())
	_, err := s.Register(context.Background(), "dave", "éééééééé", models.Profile{})
	assert.NoError(t, err)
}

func TestRegister_RepoErrorIsInternal(t *testing.T) {
	repo := newMemUsersRepo()
	repo.getErr = errors.New("db down")
	s := newUserService(t, nil, repo)

	_, err := s.Register(context.Background(), "erin", "Password1", models.Profile{})
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestSeed(t *testing.T) {
	repo := newMemUsersRepo()
	s := newUserService(t, nil, repo)

	id, err := s.Seed(context.Background(), "Admin", "AdminPass1", auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, id.Role)

	_, err = s.Seed(context.Background(), "root", "AdminPass1", auth.Role("root"))
	assert.ErrorIs(t, err, common.ErrUnknownRole)
}

// --- Login ---

func TestLogin(t *testing.T) {
	repo := newMemUsersRepo()
	seedUser(t, repo, "alice", "AlicePass1", auth.RoleAdmin)
	seedUser(t, repo, "bob", "BobPass12", auth.RoleUser)
	s := newUserService(t, nil, repo)

	p, err := s.Login(context.Background(), "alice", "AlicePass1")
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{Subject: "alice", Role: auth.RoleAdmin}, *p)

	p, err = s.Login(context.Background(), "bob", "BobPass12")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, p.Role)

	_, wrongPassword := s.Login(context.Background(), "alice", "wrong-password")
	_, unknownUser := s.Login(context.Background(), "mallory", "AlicePass1")

	assert.ErrorIs(t, wrongPassword, common.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, common.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error(), "failures must be indistinguishable")
}

func TestLogin_StoredRoleIsAuthoritative(t *testing.T) {
	repo := newMemUsersRepo()
	seedUser(t, repo, "Admin", "Password1", auth.RoleUser)
	s := newUserService(t, nil, repo)

	p, err := s.Login(context.Background(), "Admin", "Password1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, p.Role)
}

func TestLogin_CorruptRecord(t *testing.T) {
	repo := newMemUsersRepo()
	_, err := repo.Create(context.Background(), &models.User{UserName: "zed", PasswordSalt: "!!", PasswordHash: "x", Role: "User"})
	require.NoError(t, err)
	seedUser(t, repo, "yan", "Password1", auth.Role("Owner"))
	s := newUserService(t, nil, repo)

	_, err = s.Login(context.Background(), "zed", "Password1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials, "corrupt salt or hash is a generic login failure")
	assert.NotErrorIs(t, err, common.ErrorInternal)

	_, err = s.Login(context.Background(), "yan", "Password1")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin_Metrics(t *testing.T) {
	repo := newMemUsersRepo()
	seedUser(t, repo, "bob", "BobPass12", auth.RoleUser)
	reg := prometheus.NewRegistry()
	s := newUserService(t, nil, repo, WithMetrics(metrics.New(reg)))

	_, _ = s.Login(context.Background(), "bob", "BobPass12")
	_, _ = s.Login(context.Background(), "bob", "nope-nope")
	_, _ = s.Login(context.Background(), "ghost", "nope-nope")

	expected := `
# HELP libraryauth_logins_total Login attempts by outcome.
# TYPE libraryauth_logins_total counter
libraryauth_logins_total{outcome="invalid_credentials"} 2
libraryauth_logins_total{outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "libraryauth_logins_total"))
}

// --- ChangePassword ---

func TestChangePassword_ReplacesSaltAndHash(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := newMemUsersRepo()
	seedUser(t, repo, "bob", "OldPass123", auth.RoleUser)
	before := repo.users["bob"]
	s := newUserService(t, db, repo)

	require.NoError(t, s.ChangePassword(context.Background(), "bob", "OldPass123", "NewPass456"))

	after := repo.users["bob"]
	assert.NotEqual(t, before.PasswordSalt, after.PasswordSalt)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err := s.Login(context.Background(), "bob", "OldPass123")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = s.Login(context.Background(), "bob", "NewPass456")
	assert.NoError(t, err)
}

func TestChangePassword_Failures(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		current  string
		next     string
		wantErr  error
	}{
		{name: "unknown user", userName: "ghost", current: "OldPass123", next: "NewPass456", wantErr: common.ErrUserNotFound},
		{name: "wrong current password", userName: "bob", current: "WrongPass1", next: "NewPass456", wantErr: common.ErrIncorrectCurrentPassword},
		{name: "new password too short", userName: "bob", current: "OldPass123", next: "short", wantErr: common.ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newSQLMockDB(t)
			mock.ExpectBegin()
			mock.ExpectRollback()

			repo := newMemUsersRepo()
			seedUser(t, repo, "bob", "OldPass123", auth.RoleUser)
			before := repo.users["bob"]
			s := newUserService(t, db, repo)

			err := s.ChangePassword(context.Background(), tt.userName, tt.current, tt.next)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, repo.users["bob"], "stored credential must be unchanged")
			assert.Zero(t, repo.updates)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestChangePassword_CorruptRecordRejectsCurrentPassword(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := newMemUsersRepo()
	_, err := repo.Create(context.Background(), &models.User{UserName: "zed", PasswordSalt: "!!", PasswordHash: "x", Role: "User"})
	require.NoError(t, err)
	s := newUserService(t, db, repo)

	err = s.ChangePassword(context.Background(), "zed", "OldPass123", "NewPass456")
	assert.ErrorIs(t, err, common.ErrIncorrectCurrentPassword)
	assert.Zero(t, repo.updates)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePassword_BeginError(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("no tx"))

	s := newUserService(t, db, newMemUsersRepo())
	err := s.ChangePassword(context.Background(), "bob", "OldPass123", "NewPass456")
	assert.Error(t, err)
}

func TestChangePassword_UpdateErrorIsInternal(t *testing.T) {
	db, mock := newSQLMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := newMemUsersRepo()
	seedUser(t, repo, "bob", "OldPass123", auth.RoleUser)
	repo.updErr = errors.New("disk full")
	s := newUserService(t, db, repo)

	err := s.ChangePassword(context.Background(), "bob", "OldPass123", "NewPass456")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

// --- Profile and tokens ---

func TestProfile(t *testing.T) {
	repo := newMemUsersRepo()
	s := newUserService(t, nil, repo)

	_, err := s.Register(context.Background(), "bob", "BobPass12", models.Profile{FirstName: "Bob"})
	require.NoError(t, err)

	id, err := s.Profile(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", id.Profile.FirstName)

	_, err = s.Profile(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestIssueToken(t *testing.T) {
	s := newUserService(t, nil, newMemUsersRepo())

	tok, err := s.IssueToken(auth.Principal{Subject: "alice", Role: auth.RoleAdmin})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
	assert.Equal(t, 120*time.Minute, claims.ExpiresAtTime().Sub(claims.IssuedAtTime()))
}

func TestIssueAnonymousToken(t *testing.T) {
	s := newUserService(t, nil, newMemUsersRepo())

	tok, err := s.IssueAnonymousToken()
	require.NoError(t, err)

	claims, err := auth.ValidateToken(testSecret, tok)
	require.NoError(t, err)
	assert.True(t, claims.Anonymous())
	assert.Empty(t, claims.Role)
	assert.Equal(t, 10*time.Minute, claims.ExpiresAtTime().Sub(claims.IssuedAtTime()))
}

func TestValidationError_Message(t *testing.T) {
	var v validation
	v.add("username", common.ErrUsernameRequired)
	v.add("password", common.ErrPasswordTooShort)

	assert.Equal(t,
		"validation failed: password: password should be at least 8 characters long; username: username is required",
		v.err().Error())
	assert.NoError(t, (&validation{}).err())
}
