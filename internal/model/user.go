// Package model contains simple struct definitions shared across packages.
package model

import "time"

// Role distinguishes regular users from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserStats is the aggregated snapshot stored on the user row. It is
// recomputed from the owned cases after a summarization completes, not
// maintained incrementally.
type UserStats struct {
	TotalCases          int64      `json:"totalCases"`
	TotalOriginalLength int64      `json:"totalOriginalLength"`
	TotalSummaryLength  int64      `json:"totalSummaryLength"`
	AvgCompressionRatio float64    `json:"avgCompressionRatio"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
}

// User holds an account record. PasswordHash is excluded from JSON so a
// profile response can never leak it.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	Verified        bool       `json:"verified"`
	Role            Role       `json:"role"`
	CaseIDs         []string   `json:"caseIds"`
	Stats           UserStats  `json:"stats"`
	ResetToken      *string    `json:"-"`
	ResetTokenExp   *time.Time `json:"-"`
	ProfileImageURL *string    `json:"profileImageUrl,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
