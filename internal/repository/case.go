package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/model"
)

// CaseRepository persists case records and runs the aggregation queries.
type CaseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository constructs a repository.
func NewCaseRepository(pool *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

// Create inserts a case with its source locator and extracted text. Summary
// fields stay NULL until the worker completes.
func (r *CaseRepository) Create(ctx context.Context, c *model.Case) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cases (id, user_id, title, description, file_url, text_content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.UserID, c.Title, c.Description, c.FileURL, c.TextContent, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// GetByID returns the full case record, including the extracted text.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*model.Case, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, description, file_url, text_content, summary, summary_file_url,
			original_length, summary_length, compression_ratio, processing_time, stats_created_at,
			created_at, updated_at
		FROM cases WHERE id=$1
	`, id)
	var (
		c        model.Case
		origLen  *int64
		sumLen   *int64
		ratio    *float64
		procTime *float64
		statsAt  *time.Time
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Description, &c.FileURL, &c.TextContent,
		&c.Summary, &c.SummaryFileURL, &origLen, &sumLen, &ratio, &procTime, &statsAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select case: %w", err)
	}
	if statsAt != nil && origLen != nil && sumLen != nil && ratio != nil && procTime != nil {
		c.Stats = &model.CaseStats{
			OriginalLength:   *origLen,
			SummaryLength:    *sumLen,
			CompressionRatio: *ratio,
			ProcessingTime:   *procTime,
			CreatedAt:        *statsAt,
		}
	}
	return &c, nil
}

// ListByOwner returns the owner's cases in the listing projection. The
// text_content column is deliberately excluded from the query.
func (r *CaseRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.ListItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, description, file_url, summary, summary_file_url,
			original_length, summary_length, compression_ratio, processing_time, stats_created_at,
			created_at
		FROM cases WHERE user_id=$1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()
	items := make([]model.ListItem, 0)
	for rows.Next() {
		var (
			item     model.ListItem
			origLen  *int64
			sumLen   *int64
			ratio    *float64
			procTime *float64
			statsAt  *time.Time
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.FileURL,
			&item.Summary, &item.SummaryFileURL, &origLen, &sumLen, &ratio, &procTime, &statsAt,
			&item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		if statsAt != nil && origLen != nil && sumLen != nil && ratio != nil && procTime != nil {
			item.Stats = &model.CaseStats{
				OriginalLength:   *origLen,
				SummaryLength:    *sumLen,
				CompressionRatio: *ratio,
				ProcessingTime:   *procTime,
				CreatedAt:        *statsAt,
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetSummary stores the summary text, the summary PDF locator and the stats
// sub-record in one update.
func (r *CaseRepository) SetSummary(ctx context.Context, id, summary, summaryURL string, stats model.CaseStats) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cases
		SET summary=$1, summary_file_url=$2,
			original_length=$3, summary_length=$4, compression_ratio=$5, processing_time=$6,
			stats_created_at=$7, updated_at=$8
		WHERE id=$9
	`, summary, summaryURL, stats.OriginalLength, stats.SummaryLength, stats.CompressionRatio,
		stats.ProcessingTime, stats.CreatedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

// Delete removes a case row.
func (r *CaseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cases WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	return nil
}

// OwnerAggregate recomputes an owner's totals by scanning their cases. O(n)
// per call, invoked only after a summarization completes or on request.
func (r *CaseRepository) OwnerAggregate(ctx context.Context, ownerID string) (model.UserStats, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(original_length), 0),
			COALESCE(SUM(summary_length), 0),
			COALESCE(AVG(compression_ratio), 0)
		FROM cases WHERE user_id=$1
	`, ownerID)
	var stats model.UserStats
	if err := row.Scan(&stats.TotalCases, &stats.TotalOriginalLength,
		&stats.TotalSummaryLength, &stats.AvgCompressionRatio); err != nil {
		return model.UserStats{}, fmt.Errorf("aggregate owner stats: %w", err)
	}
	return stats, nil
}

// CountAll returns the total number of cases.
func (r *CaseRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cases`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

// CountCreatedSince returns how many cases were created after the cutoff.
func (r *CaseRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent cases: %w", err)
	}
	return n, nil
}

// GlobalAggregate computes the dashboard-wide case statistics over summarized
// cases.
func (r *CaseRepository) GlobalAggregate(ctx context.Context) (model.DashboardCaseStats, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(compression_ratio), 0),
			COALESCE(MAX(compression_ratio), 0),
			COALESCE(AVG(processing_time), 0),
			COALESCE(SUM(original_length), 0),
			COALESCE(SUM(summary_length), 0),
			COALESCE(AVG(original_length), 0),
			COALESCE(AVG(summary_length), 0)
		FROM cases WHERE stats_created_at IS NOT NULL
	`)
	var stats model.DashboardCaseStats
	if err := row.Scan(&stats.AvgCompressionRatio, &stats.MaxCompressionRatio,
		&stats.AvgProcessingTime, &stats.TotalOriginalLength, &stats.TotalSummaryLength,
		&stats.AvgOriginalLength, &stats.AvgSummaryLength); err != nil {
		return model.DashboardCaseStats{}, fmt.Errorf("aggregate cases: %w", err)
	}
	return stats, nil
}

// TopOwners returns the most active users by case count.
func (r *CaseRepository) TopOwners(ctx context.Context, limit int) ([]model.TopUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(u.username, 'deleted user'), COUNT(c.id) AS case_count
		FROM cases c LEFT JOIN users u ON u.id = c.user_id
		GROUP BY u.username
		ORDER BY case_count DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top owners: %w", err)
	}
	defer rows.Close()
	var top []model.TopUser
	for rows.Next() {
		var t model.TopUser
		if err := rows.Scan(&t.Username, &t.CaseCount); err != nil {
			return nil, fmt.Errorf("scan top owner: %w", err)
		}
		top = append(top, t)
	}
	return top, rows.Err()
}
