// Package users covers the profile read path and the administrative
// operations over accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/blob"
	"github.com/ozanyurt/caseflow/internal/cache"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/model"
)

// Repo is the account persistence used here.
type Repo interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Delete(ctx context.Context, id string) error
	SetProfileImage(ctx context.Context, id, locator string) error
	CountByRole(ctx context.Context) (total, admins int64, err error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// CaseCounts feeds the dashboard aggregates.
type CaseCounts interface {
	CountAll(ctx context.Context) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	GlobalAggregate(ctx context.Context) (model.DashboardCaseStats, error)
	TopOwners(ctx context.Context, limit int) ([]model.TopUser, error)
}

// CaseDeleter removes a user's cases with their blobs.
type CaseDeleter interface {
	DeleteBatch(ctx context.Context, ownerID string, caseIDs []string) (*cases.DeleteResult, error)
}

// Blob stores profile images.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, locator string) error
}

// Snapshots is the advisory cache.
type Snapshots interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, v any)
	Invalidate(ctx context.Context, keys ...string)
}

// OTPInvalidator discards pending codes when an account is removed.
type OTPInvalidator interface {
	Invalidate(ctx context.Context, userID string) (int64, error)
}

// Service implements profile and admin operations.
type Service struct {
	repo      Repo
	caseStats CaseCounts
	deleter   CaseDeleter
	blobs     Blob
	snapshots Snapshots
	otp       OTPInvalidator
	log       *slog.Logger
}

// NewService wires the users service.
func NewService(repo Repo, caseStats CaseCounts, deleter CaseDeleter, blobs Blob,
	snapshots Snapshots, otp OTPInvalidator, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		caseStats: caseStats,
		deleter:   deleter,
		blobs:     blobs,
		snapshots: snapshots,
		otp:       otp,
		log:       log.With("component", "users"),
	}
}

// Profile is a cache-first read of the user's own record. The password hash
// is excluded from JSON by the model, so the cached snapshot never holds it.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	key := cache.ProfileKey(userID)
	var cached model.User
	if s.snapshots.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.E(apperr.KindNotFound, "users.profile", apperr.ErrNotFound)
		}
		return nil, apperr.E(apperr.KindStorage, "users.profile", err)
	}
	s.snapshots.SetJSON(ctx, key, user)
	return user, nil
}

// UploadProfileImage replaces the user's profile image. The previous image is
// deleted best-effort before the new locator is stored.
func (s *Service) UploadProfileImage(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Errorf(apperr.KindValidation, "users.image", "image is required")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.E(apperr.KindNotFound, "users.image", apperr.ErrNotFound)
		}
		return "", apperr.E(apperr.KindStorage, "users.image", err)
	}
	if user.ProfileImageURL != nil {
		if err := s.blobs.Delete(ctx, *user.ProfileImageURL); err != nil {
			s.log.Warn("old profile image not deleted", "user_id", userID, "error", err)
		}
	}
	locator, err := s.blobs.Put(ctx, blob.ProfileImageKey(userID, fileName), data, contentType)
	if err != nil {
		return "", apperr.E(apperr.KindStorage, "users.image", err)
	}
	if err := s.repo.SetProfileImage(ctx, userID, locator); err != nil {
		return "", apperr.E(apperr.KindStorage, "users.image", err)
	}
	s.snapshots.Invalidate(ctx, cache.ProfileKey(userID))
	return locator, nil
}

// ListUsers returns all accounts for the admin view.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.list", err)
	}
	return users, nil
}

// Dashboard assembles the admin statistics: totals, last-week buckets, global
// compression aggregates and the most active owners.
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	weekAgo := time.Now().UTC().Add(-7 * 24 * time.Hour)

	total, admins, err := s.repo.CountByRole(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}
	newUsers, err := s.repo.CountCreatedSince(ctx, weekAgo)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}
	top, err := s.caseStats.TopOwners(ctx, 5)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}

	caseTotals, err := s.caseStats.GlobalAggregate(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}
	caseTotals.Total, err = s.caseStats.CountAll(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}
	caseTotals.NewLastWeek, err = s.caseStats.CountCreatedSince(ctx, weekAgo)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "users.dashboard", err)
	}

	return &model.DashboardStats{
		Users: model.DashboardUserStats{
			Total:        total,
			Admins:       admins,
			RegularUsers: total - admins,
			NewLastWeek:  newUsers,
			TopUsers:     top,
		},
		Cases: caseTotals,
	}, nil
}

// DeleteUser removes an account and everything it owns: cases with their
// blobs first, then the profile image, pending OTP and the user row. Users
// are never cascade-deleted implicitly; this is the one explicit routine.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, "users.delete", apperr.ErrNotFound)
		}
		return apperr.E(apperr.KindStorage, "users.delete", err)
	}
	if len(user.CaseIDs) > 0 {
		result, err := s.deleter.DeleteBatch(ctx, userID, user.CaseIDs)
		if err != nil {
			return fmt.Errorf("delete owned cases: %w", err)
		}
		if len(result.Failed) > 0 {
			s.log.Warn("some owned cases not deleted", "user_id", userID, "failed", result.Failed)
		}
	}
	if user.ProfileImageURL != nil {
		if err := s.blobs.Delete(ctx, *user.ProfileImageURL); err != nil {
			s.log.Warn("profile image not deleted", "user_id", userID, "error", err)
		}
	}
	if _, err := s.otp.Invalidate(ctx, userID); err != nil {
		s.log.Warn("pending otp not invalidated", "user_id", userID, "error", err)
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return apperr.E(apperr.KindStorage, "users.delete", err)
	}
	s.snapshots.Invalidate(ctx, cache.ProfileKey(userID), cache.CaseListKey(userID))
	return nil
}
