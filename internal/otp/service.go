package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/calmly-app/calmly/internal/identity"
	"github.com/calmly-app/calmly/internal/logging"
	"github.com/calmly-app/calmly/internal/metrics"
	"github.com/calmly-app/calmly/internal/notification"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 300 * time.Second
	// retentionGrace keeps entries in the store a little past their validity
	// so an expired submission is reported as expired, not as missing.
	retentionGrace = time.Minute
	codeDigits     = 6
	sendTimeout    = 15 * time.Second
)

var codeSpace = big.NewInt(1_000_000)

// Registrar creates the account an OTP verification authorizes.
type Registrar interface {
	Signup(ctx context.Context, creds identity.Credentials) (identity.User, error)
}

// Service issues and verifies registration codes.
type Service struct {
	store    Store
	accounts Registrar
	notifier notification.Notifier
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
	random   io.Reader
}

// NewService builds an OTP service. A non-positive ttl selects DefaultTTL.
func NewService(store Store, accounts Registrar, notifier notification.Notifier, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    store,
		accounts: accounts,
		notifier: notifier,
		ttl:      ttl,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
		random:   rand.Reader,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Issue generates a fresh code for email, replaces any outstanding one and
// hands it to the notifier. Delivery failures are logged, not returned.
func (s *Service) Issue(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}

	code, err := generateCode(s.random)
	if err != nil {
		return "", err
	}

	entry := Entry{Email: email, Code: code, IssuedAt: s.now().UTC()}
	if err := s.store.Save(ctx, entry, s.ttl+retentionGrace); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindOTP,
			Destination: email,
			Subject:     "Your verification code",
			Body:        fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes())),
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := s.notifier.Send(sendCtx, msg); err != nil {
			metrics.OTPDeliveryFailures.Inc()
			logging.FromContext(ctx, s.logger).Error("otp delivery failed", slog.Any("error", err))
		}
	}

	return code, nil
}

// Verify consumes the code issued to email and registers email as a
// username with password. A code is accepted at most once and only within
// the validity window.
func (s *Service) Verify(ctx context.Context, email, code, password string) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || password == "" {
		return fmt.Errorf("%w: email, otp and password are required", ErrValidation)
	}

	entry, err := s.store.Take(ctx, email, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMismatch) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.now().Sub(entry.IssuedAt) > s.ttl {
		return ErrExpired
	}

	if _, err := s.accounts.Signup(ctx, identity.Credentials{Username: email, Password: password}); err != nil {
		return fmt.Errorf("register %s: %w", email, err)
	}
	return nil
}

func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
