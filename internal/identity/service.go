package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages account lifecycle.
type Service struct {
	repo Repository
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService creates a new identity service hashing with bcrypt.DefaultCost.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Values outside bcrypt's range are ignored.
func (s *Service) WithHashCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
	return s
}

// Exists reports whether username is taken.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.FindByUsername(ctx, normalizeUsername(username))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Signup hashes the password and stores a new user. The store's uniqueness
// constraint is the single source of truth: a conflict yields ErrUserExists.
func (s *Service) Signup(ctx context.Context, creds Credentials) (User, error) {
	creds.Username = normalizeUsername(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return User{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     creds.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Verify reports whether password matches the stored hash for username. An
// unknown user still costs one bcrypt comparison. Only store failures are
// returned as errors.
func (s *Service) Verify(ctx context.Context, username, password string) (bool, error) {
	user, err := s.repo.FindByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return false, nil
		}
		return false, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// Login verifies credentials. Unknown users and wrong passwords both yield
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, creds Credentials) error {
	if normalizeUsername(creds.Username) == "" || creds.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	ok, err := s.Verify(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// normalizeUsername strips surrounding whitespace so " alice" and "alice"
// name the same account.
func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
