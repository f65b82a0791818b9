// Package otp implements one-time verification codes backed by an ephemeral
// TTL store. At most one live code exists per user: generating a new code
// overwrites the previous one, and a verified code is deleted on first use.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ozanyurt/caseflow/internal/apperr"
)

const keyPrefix = "otp:"

// Store is the ephemeral key-value store holding pending codes. Unlike the
// advisory snapshot cache, store failures here are fatal to the caller.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (int64, error)
}

// Notifier dispatches the code to the user. Verification and password-reset
// codes travel on different templates.
type Notifier interface {
	SendOTPEmail(ctx context.Context, email, code string) error
	SendPasswordResetEmail(ctx context.Context, email, code string) error
}

// Service generates, verifies and supersedes one-time codes.
type Service struct {
	store    Store
	notifier Notifier
	ttl      time.Duration
	log      *slog.Logger
}

// NewService builds an OTP service with the given code TTL.
func NewService(store Store, notifier Notifier, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, ttl: ttl, log: log.With("component", "otp")}
}

// Generate creates a fresh 6-digit code for the user, overwriting any pending
// code, and dispatches exactly one notification. A dispatch failure is
// returned: the caller must not treat an unsent code as sent.
func (s *Service) Generate(ctx context.Context, userID, email string) error {
	return s.generate(ctx, userID, email, s.notifier.SendOTPEmail)
}

func (s *Service) generate(ctx context.Context, userID, email string, send func(context.Context, string, string) error) error {
	code, err := randomCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, keyPrefix+userID, code, s.ttl); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if err := send(ctx, email, code); err != nil {
		return fmt.Errorf("dispatch otp: %w", err)
	}
	s.log.Info("otp issued", "user_id", userID)
	return nil
}

// Verify checks the submitted code. Absent, expired or mismatched codes report
// false; an exact match deletes the record so the code is single-use.
func (s *Service) Verify(ctx context.Context, userID, code string) (bool, error) {
	stored, err := s.store.Get(ctx, keyPrefix+userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}
	if _, err := s.store.Delete(ctx, keyPrefix+userID); err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}

// Resend supersedes any pending code and issues a new one. The returned count
// reports how many prior codes were invalidated (0 or 1).
func (s *Service) Resend(ctx context.Context, userID, email string) (int64, error) {
	superseded, err := s.store.Delete(ctx, keyPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("supersede otp: %w", err)
	}
	if err := s.Generate(ctx, userID, email); err != nil {
		return superseded, err
	}
	return superseded, nil
}

// ResendReset supersedes any pending code with one delivered on the
// password-reset template.
func (s *Service) ResendReset(ctx context.Context, userID, email string) (int64, error) {
	superseded, err := s.store.Delete(ctx, keyPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("supersede otp: %w", err)
	}
	if err := s.generate(ctx, userID, email, s.notifier.SendPasswordResetEmail); err != nil {
		return superseded, err
	}
	return superseded, nil
}

// Invalidate discards any pending code without issuing a replacement. Used
// when an unverified account is purged.
func (s *Service) Invalidate(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.Delete(ctx, keyPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate otp: %w", err)
	}
	return n, nil
}

func randomCode() (string, error) {
	// Uniform in [100000, 999999] so the code is always six digits.
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
