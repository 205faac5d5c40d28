package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tracepoint-dashboard-api/internal/logger"
	"tracepoint-dashboard-api/internal/model"
	"tracepoint-dashboard-api/internal/repository"
	apperrors "tracepoint-dashboard-api/pkg/errors"
	"tracepoint-dashboard-api/pkg/validation"
)

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not logged in")
	ErrEmailTaken         = repository.ErrEmailTaken
)

// Seeded account
const (
	SeedUserID       = "1"
	SeedUserName     = "Admin User"
	SeedUserEmail    = "admin@example.com"
	SeedUserPassword = "password"
)

// Session is a logged in user and the opaque token identifying them.
type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// AuthService is the placeholder account store behind the login screen.
// Sessions live in memory only.
type AuthService struct {
	repo   repository.UserRepository
	logger logger.Logger
	cost   int
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]string // token -> user id
}

// NewAuthService creates an auth service. cost is the bcrypt cost; values
// outside bcrypt's range use bcrypt.DefaultCost.
func NewAuthService(repo repository.UserRepository, cost int, log logger.Logger) *AuthService {
	if log == nil {
		log = logger.Noop()
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		repo:     repo,
		logger:   log,
		cost:     cost,
		now:      time.Now,
		sessions: make(map[string]string),
	}
}

// Seed creates the default admin account when the store holds no users.
func (s *AuthService) Seed(ctx context.Context) error {
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return apperrors.DatabaseError("failed to count users", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedUserPassword), s.cost)
	if err != nil {
		return apperrors.InternalError("failed to hash password", err)
	}
	user := model.User{
		ID:           SeedUserID,
		Name:         SeedUserName,
		Email:        SeedUserEmail,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil && !errors.Is(err, repository.ErrEmailTaken) {
		return apperrors.DatabaseError("failed to seed user", err)
	}
	s.logger.Info("Seeded default account %s", SeedUserEmail)
	return nil
}

// Login checks the credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := validation.ValidateRequired("email", email); err != nil {
		return nil, apperrors.ValidationError(err.Error()).WithDetail("field", "email")
	}
	if err := validation.ValidateRequired("password", password); err != nil {
		return nil, apperrors.ValidationError(err.Error()).WithDetail("field", "password")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperrors.DatabaseError("failed to load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("User %s logged in", user.Email)
	return s.open(*user), nil
}

// Signup creates an account and logs it in.
func (s *AuthService) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	if errs := validation.ValidateSignupInput(name, email, password); len(errs) > 0 {
		return nil, apperrors.ValidationError(strings.Join(errs, "; "))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash password", err)
	}
	now := s.now().UTC()
	user := model.User{
		ID:           "user_" + uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, fmt.Errorf("signup %s: %w", user.Email, ErrEmailTaken)
		}
		return nil, apperrors.DatabaseError("failed to create user", err)
	}

	s.logger.Info("Created account %s", user.Email)
	return s.open(user), nil
}

func (s *AuthService) open(user model.User) *Session {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = user.ID
	s.mu.Unlock()
	return &Session{Token: token, User: user}
}

// Logout closes the session of token. Unknown tokens are ignored.
func (s *AuthService) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CurrentUser returns the user owning token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	s.mu.RLock()
	id, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok || token == "" {
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.Logout(token)
			return nil, ErrUnauthenticated
		}
		return nil, apperrors.DatabaseError("failed to load user", err)
	}
	return user, nil
}

// Sessions returns the number of open sessions.
func (s *AuthService) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
