package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the users and cases tables if needed. Keeping the
// migration in code lets docker-compose bootstrap a fresh stack. The UNIQUE
// constraints on email and username close the duplicate-registration race that
// an application-level existence check alone would leave open.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	role TEXT NOT NULL DEFAULT 'user',
	case_ids TEXT[] NOT NULL DEFAULT '{}',
	total_cases BIGINT NOT NULL DEFAULT 0,
	total_original_length BIGINT NOT NULL DEFAULT 0,
	total_summary_length BIGINT NOT NULL DEFAULT 0,
	avg_compression_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	stats_updated_at TIMESTAMPTZ,
	reset_token TEXT,
	reset_token_expires_at TIMESTAMPTZ,
	profile_image_url TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_url TEXT NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	summary TEXT,
	summary_file_url TEXT,
	original_length BIGINT,
	summary_length BIGINT,
	compression_ratio DOUBLE PRECISION,
	processing_time DOUBLE PRECISION,
	stats_created_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_user_id ON cases(user_id);
CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
