// Package otp issues and verifies email one-time codes that authorize
// registering an account.
package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no code is outstanding for the email.
	ErrNotFound = errors.New("otp not found")
	// ErrMismatch means the submitted code differs from the issued one.
	ErrMismatch = errors.New("otp mismatch")
	// ErrExpired means the code was correct but older than the validity window.
	ErrExpired = errors.New("otp expired")
	// ErrValidation is returned for missing fields.
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable wraps failures of the OTP store.
	ErrStoreUnavailable = errors.New("otp store unavailable")
)

// Entry is one outstanding code.
type Entry struct {
	Email    string
	Code     string
	IssuedAt time.Time
}

// Store keeps at most one Entry per email.
type Store interface {
	// Save stores entry, replacing any previous entry for the same email.
	// The store may forget the entry once retention has elapsed.
	Save(ctx context.Context, entry Entry, retention time.Duration) error
	// Take atomically removes and returns the entry for email if its code
	// equals code. It returns ErrNotFound when nothing is stored and
	// ErrMismatch, leaving the entry in place, when the code differs.
	Take(ctx context.Context, email, code string) (Entry, error)
}
