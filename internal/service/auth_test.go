package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/repository"
	apperrors "tracepoint-dashboard-api/pkg/errors"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	svc := NewAuthService(repository.NewMemoryUserRepository(), bcrypt.MinCost, nil)
	require.NoError(t, svc.Seed(context.Background()))
	return svc
}

func TestSeed_Idempotent(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	svc := NewAuthService(repo, bcrypt.MinCost, nil)

	require.NoError(t, svc.Seed(context.Background()))
	require.NoError(t, svc.Seed(context.Background()))

	n, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	admin, err := repo.GetUserByID(context.Background(), SeedUserID)
	require.NoError(t, err)
	assert.Equal(t, SeedUserName, admin.Name)
	assert.NotEqual(t, SeedUserPassword, admin.PasswordHash)
}

func TestLogin(t *testing.T) {
	svc := newAuth(t)
	ctx := context.Background()

	session, err := svc.Login(ctx, "Admin@Example.com", SeedUserPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, SeedUserID, session.User.ID)

	user, err := svc.CurrentUser(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, SeedUserEmail, user.Email)

	svc.Logout(session.Token)
	_, err = svc.CurrentUser(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 0, svc.Sessions())
}

func TestLogin_Rejects(t *testing.T) {
	svc := newAuth(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, SeedUserEmail, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", SeedUserPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "", "")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCodeValidation, appErr.Code)
}

func TestSignup(t *testing.T) {
	svc := newAuth(t)
	ctx := context.Background()

	session, err := svc.Signup(ctx, " Jane Doe ", "Jane@Example.com", "secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.User.ID, "user_"))
	assert.Equal(t, "Jane Doe", session.User.Name)
	assert.Equal(t, "jane@example.com", session.User.Email)

	user, err := svc.CurrentUser(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)

	_, err = svc.Login(ctx, "jane@example.com", "secret1")
	assert.NoError(t, err)
}

func TestSignup_SameInstantGetsDistinctIDs(t *testing.T) {
	svc := newAuth(t)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := svc.Signup(ctx, "First", "first@example.com", "secret1")
	require.NoError(t, err)
	second, err := svc.Signup(ctx, "Second", "second@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, first.User.ID, second.User.ID)
}

func TestSignup_Rejects(t *testing.T) {
	svc := newAuth(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "Other Admin", SeedUserEmail, "secret1")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Signup(ctx, "", "not-an-email", "123")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCodeValidation, appErr.Code)
	assert.Contains(t, appErr.Message, "password")
}

// failingRepo is a user repository whose reads fail.
type failingRepo struct {
	repository.UserRepository
}

func (failingRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, errors.New("connection reset")
}

func (failingRepo) CountUsers(ctx context.Context) (int, error) {
	return 0, errors.New("connection reset")
}

func TestAuth_RepositoryFailures(t *testing.T) {
	svc := NewAuthService(failingRepo{repository.NewMemoryUserRepository()}, bcrypt.MinCost, nil)

	err := svc.Seed(context.Background())
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCodeDatabase, appErr.Code)

	_, err = svc.Login(context.Background(), SeedUserEmail, SeedUserPassword)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, apperrors.IsAppError(err))
}

func TestCurrentUser_UnknownToken(t *testing.T) {
	svc := newAuth(t)
	_, err := svc.CurrentUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.CurrentUser(context.Background(), "made-up")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
