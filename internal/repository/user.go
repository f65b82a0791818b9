// Package repository wraps all SQL used throughout the API and worker.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/model"
)

// uniqueViolation is the Postgres error code for UNIQUE constraint failures.
const uniqueViolation = "23505"

const userColumns = `id, email, username, password_hash, verified, role, case_ids,
	total_cases, total_original_length, total_summary_length, avg_compression_ratio, stats_updated_at,
	reset_token, reset_token_expires_at, profile_image_url, created_at, updated_at`

// UserRepository persists account records.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user. A concurrent duplicate loses at the UNIQUE
// constraint and surfaces as a conflict.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, verified, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Verified, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.E(apperr.KindConflict, "users.create", apperr.ErrDuplicateUser)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) getBy(ctx context.Context, where string, args ...any) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Verified, &u.Role, &u.CaseIDs,
		&u.Stats.TotalCases, &u.Stats.TotalOriginalLength, &u.Stats.TotalSummaryLength,
		&u.Stats.AvgCompressionRatio, &u.Stats.UpdatedAt,
		&u.ResetToken, &u.ResetTokenExp, &u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getBy(ctx, "id=$1", id)
}

// GetByEmail returns a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email=$1", email)
}

// GetByEmailOrUsername returns any user colliding on either identity.
func (r *UserRepository) GetByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	return r.getBy(ctx, "email=$1 OR username=$2", email, username)
}

// Delete removes a user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// SetVerified flips the account to verified.
func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET verified=TRUE, updated_at=$1 WHERE id=$2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// SetResetToken stores (or clears) the password-reset token and expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, id string, token *string, expires *time.Time) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token=$1, reset_token_expires_at=$2, updated_at=$3 WHERE id=$4`,
		token, expires, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	return nil
}

// UpdatePassword replaces the hash and clears the reset token fields so the
// token cannot be redeemed again.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash=$1, reset_token=NULL, reset_token_expires_at=NULL, updated_at=$2
		WHERE id=$3
	`, passwordHash, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// PushCaseID appends a case id to the owner's owned-id list.
func (r *UserRepository) PushCaseID(ctx context.Context, id, caseID string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET case_ids=array_append(case_ids,$1), updated_at=$2 WHERE id=$3`,
		caseID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("push case id: %w", err)
	}
	return nil
}

// PullCaseID removes a case id from the owner's owned-id list.
func (r *UserRepository) PullCaseID(ctx context.Context, id, caseID string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET case_ids=array_remove(case_ids,$1), updated_at=$2 WHERE id=$3`,
		caseID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("pull case id: %w", err)
	}
	return nil
}

// UpdateStats stores the recomputed aggregate snapshot.
func (r *UserRepository) UpdateStats(ctx context.Context, id string, stats model.UserStats) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE users
		SET total_cases=$1, total_original_length=$2, total_summary_length=$3,
			avg_compression_ratio=$4, stats_updated_at=$5, updated_at=$5
		WHERE id=$6
	`, stats.TotalCases, stats.TotalOriginalLength, stats.TotalSummaryLength,
		stats.AvgCompressionRatio, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	return nil
}

// SetProfileImage stores the profile image locator.
func (r *UserRepository) SetProfileImage(ctx context.Context, id, locator string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE users SET profile_image_url=$1, updated_at=$2 WHERE id=$3`,
		locator, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set profile image: %w", err)
	}
	return nil
}

// List returns all users, newest first. The password hash never leaves the
// model's JSON encoding, so the full row is safe to return.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Verified, &u.Role, &u.CaseIDs,
			&u.Stats.TotalCases, &u.Stats.TotalOriginalLength, &u.Stats.TotalSummaryLength,
			&u.Stats.AvgCompressionRatio, &u.Stats.UpdatedAt,
			&u.ResetToken, &u.ResetTokenExp, &u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountByRole returns total users and how many are admins.
func (r *UserRepository) CountByRole(ctx context.Context) (total, admins int64, err error) {
	row := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE role=$1) FROM users`, model.RoleAdmin)
	if err := row.Scan(&total, &admins); err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, admins, nil
}

// CountCreatedSince returns how many users registered after the cutoff.
func (r *UserRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent users: %w", err)
	}
	return n, nil
}
