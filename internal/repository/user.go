package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"tracepoint-dashboard-api/internal/model"
)

// Custom errors for better error handling
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("user with this email already exists")
	ErrUserExists   = errors.New("user with this id already exists")
)

// emailConstraint is the unique constraint on users.email.
const emailConstraint = "users_email_key"

// UserRepository is an interface for interacting with dashboard accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CountUsers(ctx context.Context) (int, error)
}

// normalizeEmail is applied on every write and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userRepository is the Postgres implementation of UserRepository.
type userRepository struct {
	DB *sql.DB
}

// NewUserRepository creates a Postgres-backed UserRepository.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

// uniqueViolation maps a Postgres unique constraint violation (SQLSTATE
// 23505) to ErrEmailTaken or ErrUserExists depending on the constraint hit.
// It returns nil for any other error.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "23505" {
			return nil
		}
		if pqErr.Constraint == emailConstraint ||
			(pqErr.Constraint == "" && strings.Contains(pqErr.Message, emailConstraint)) {
			return ErrEmailTaken
		}
		return ErrUserExists
	}
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		if strings.Contains(err.Error(), emailConstraint) {
			return ErrEmailTaken
		}
		return ErrUserExists
	}
	return nil
}

// CreateUser adds a new user to the database.
func (r *userRepository) CreateUser(ctx context.Context, user model.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.DB.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		switch uniqueViolation(err) {
		case ErrEmailTaken:
			return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
		case ErrUserExists:
			return fmt.Errorf("%w: %s", ErrUserExists, user.ID)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT id, name, email, password_hash, created_at FROM users WHERE ` + where + ` = $1`

	var u model.User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", where, err)
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email", normalizeEmail(email))
}

// GetUserByID retrieves a user by id.
func (r *userRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "id", id)
}

// EmailExists checks if an account with the given email already exists
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, normalizeEmail(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// CountUsers returns the number of accounts.
func (r *userRepository) CountUsers(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// memoryUserRepository keeps accounts in process memory.
type memoryUserRepository struct {
	mu    sync.RWMutex
	users []model.User
}

// NewMemoryUserRepository creates an in-memory UserRepository.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{}
}

func (r *memoryUserRepository) CreateUser(ctx context.Context, user model.User) error {
	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
		}
		if u.ID == user.ID {
			return fmt.Errorf("%w: %s", ErrUserExists, user.ID)
		}
	}
	r.users = append(r.users, user)
	return nil
}

func (r *memoryUserRepository) find(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *memoryUserRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *memoryUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memoryUserRepository) CountUsers(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}
