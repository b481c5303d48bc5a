package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserExists is returned when the store already holds the username.
	ErrUserExists = errors.New("user exists")
	// ErrUserNotFound is returned by repositories for unknown usernames.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStoreUnavailable wraps failures of the underlying user store.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrValidation is returned for missing or unusable fields.
	ErrValidation = errors.New("validation failed")
)

// User is a registered account. Username is unique; for OTP registrations
// it is the email address.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Username string
	Password string
}
