package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/model"
)

const bcryptCost = 10

// UserRepo is the persistence the auth flow needs.
type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
	Delete(ctx context.Context, id string) error
	SetVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id string, token *string, expires *time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// OTPService drives the verification codes.
type OTPService interface {
	Generate(ctx context.Context, userID, email string) error
	Verify(ctx context.Context, userID, code string) (bool, error)
	Resend(ctx context.Context, userID, email string) (int64, error)
	ResendReset(ctx context.Context, userID, email string) (int64, error)
	Invalidate(ctx context.Context, userID string) (int64, error)
}

// Notifier sends non-OTP notifications.
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, email, username string) error
}

// RegisterResult reports the created, still-unverified account.
type RegisterResult struct {
	UserID string `json:"userId"`
	// Superseded is true when an abandoned unverified account with the same
	// email or username was purged to make room.
	Superseded bool `json:"superseded"`
}

// LoginResult is either a token pair or a verification demand, never both.
type LoginResult struct {
	VerificationRequired bool       `json:"verificationRequired"`
	UserID               string     `json:"userId"`
	Tokens               *TokenPair `json:"tokens,omitempty"`
}

// Service implements the UNVERIFIED -> VERIFIED account state machine.
type Service struct {
	users    UserRepo
	otp      OTPService
	tokens   *TokenManager
	notifier Notifier
	log      *slog.Logger
}

// NewService wires the auth service.
func NewService(users UserRepo, otpSvc OTPService, tokens *TokenManager, notifier Notifier, log *slog.Logger) *Service {
	return &Service{users: users, otp: otpSvc, tokens: tokens, notifier: notifier, log: log.With("component", "auth")}
}

// Register creates an unverified account and issues an OTP. A verified
// duplicate is a conflict; an unverified duplicate is purged together with its
// pending code so an abandoned registration cannot squat the email forever.
func (s *Service) Register(ctx context.Context, email, username, password string) (*RegisterResult, error) {
	if email == "" || username == "" || password == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "auth.register", "email, username and password are required")
	}
	superseded := false
	existing, err := s.users.GetByEmailOrUsername(ctx, email, username)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		if existing.Verified {
			return nil, apperr.E(apperr.KindConflict, "auth.register", apperr.ErrDuplicateUser)
		}
		if _, err := s.otp.Invalidate(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("purge pending otp: %w", err)
		}
		if err := s.users.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("purge unverified user: %w", err)
		}
		superseded = true
		s.log.Info("purged unverified duplicate", "user_id", existing.ID)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Verified:     false,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := s.otp.Generate(ctx, user.ID, user.Email); err != nil {
		return nil, fmt.Errorf("issue otp: %w", err)
	}
	return &RegisterResult{UserID: user.ID, Superseded: superseded}, nil
}

// Login validates credentials. Unverified accounts get a fresh OTP and a
// verification demand instead of tokens. The error never reveals whether the
// email or the password was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.E(apperr.KindAuth, "auth.login", apperr.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.E(apperr.KindAuth, "auth.login", apperr.ErrInvalidCredentials)
	}
	if !user.Verified {
		if _, err := s.otp.Resend(ctx, user.ID, user.Email); err != nil {
			return nil, fmt.Errorf("reissue otp: %w", err)
		}
		return &LoginResult{VerificationRequired: true, UserID: user.ID}, nil
	}
	pair, err := s.tokens.Pair(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: user.ID, Tokens: pair}, nil
}

// VerifyEmail consumes an OTP, flips the account to VERIFIED and issues the
// first token pair. The welcome email is best-effort.
func (s *Service) VerifyEmail(ctx context.Context, userID, code string) (*TokenPair, error) {
	ok, err := s.otp.Verify(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if !ok {
		return nil, apperr.E(apperr.KindAuth, "auth.verify", apperr.ErrInvalidOTP)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.E(apperr.KindNotFound, "auth.verify", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Verified {
		if err := s.users.SetVerified(ctx, userID); err != nil {
			return nil, fmt.Errorf("mark verified: %w", err)
		}
		if err := s.notifier.SendWelcomeEmail(ctx, user.Email, user.Username); err != nil {
			s.log.Warn("welcome email not queued", "user_id", userID, "error", err)
		}
	}
	return s.tokens.Pair(user.ID, string(user.Role))
}

// ResendOTP supersedes the pending code for an unverified account.
func (s *Service) ResendOTP(ctx context.Context, email string) (int64, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, apperr.E(apperr.KindNotFound, "auth.resend", apperr.ErrNotFound)
		}
		return 0, fmt.Errorf("load user: %w", err)
	}
	if user.Verified {
		return 0, apperr.Errorf(apperr.KindValidation, "auth.resend", "email is already verified")
	}
	return s.otp.Resend(ctx, user.ID, user.Email)
}

// Refresh exchanges a valid refresh token for a new pair. The old refresh
// token stays valid until its own expiry; there is no server-side revocation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.tokens.Pair(claims.UserID, claims.Role)
}

// ForgotPassword issues an OTP authorizing a password reset.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, "auth.forgot", apperr.ErrNotFound)
		}
		return fmt.Errorf("load user: %w", err)
	}
	if _, err := s.otp.ResendReset(ctx, user.ID, user.Email); err != nil {
		return fmt.Errorf("issue reset otp: %w", err)
	}
	return nil
}

// VerifyResetOTP consumes a reset OTP and yields a short-lived reset token,
// also recorded on the user so redemption can check it is the latest one.
func (s *Service) VerifyResetOTP(ctx context.Context, userID, code string) (string, error) {
	ok, err := s.otp.Verify(ctx, userID, code)
	if err != nil {
		return "", fmt.Errorf("verify otp: %w", err)
	}
	if !ok {
		return "", apperr.E(apperr.KindAuth, "auth.reset", apperr.ErrInvalidOTP)
	}
	token, err := s.tokens.ResetToken(userID)
	if err != nil {
		return "", err
	}
	expires := time.Now().UTC().Add(s.tokens.ResetTokenTTL())
	if err := s.users.SetResetToken(ctx, userID, &token, &expires); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// ResetPassword redeems a reset token. The stored token fields are cleared by
// the password update, so a token cannot be redeemed twice.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if newPassword == "" {
		return apperr.Errorf(apperr.KindValidation, "auth.reset", "new password is required")
	}
	claims, err := s.tokens.Parse(resetToken, TypeReset)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, "auth.reset", apperr.ErrNotFound)
		}
		return fmt.Errorf("load user: %w", err)
	}
	if user.ResetToken == nil || *user.ResetToken != resetToken {
		return apperr.E(apperr.KindAuth, "auth.reset", apperr.ErrInvalidToken)
	}
	if user.ResetTokenExp == nil || time.Now().After(*user.ResetTokenExp) {
		return apperr.E(apperr.KindAuth, "auth.reset", apperr.ErrInvalidToken)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
