// Package cases orchestrates the case lifecycle: upload, extraction,
// asynchronous summarization, derived artifacts, statistics and cache-coherent
// reads.
package cases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/blob"
	"github.com/ozanyurt/caseflow/internal/cache"
	"github.com/ozanyurt/caseflow/internal/model"
	"github.com/ozanyurt/caseflow/internal/pdf"
	"github.com/ozanyurt/caseflow/internal/summarize"
)

// CaseRepo is the case persistence the orchestrator needs.
type CaseRepo interface {
	Create(ctx context.Context, c *model.Case) error
	GetByID(ctx context.Context, id string) (*model.Case, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.ListItem, error)
	SetSummary(ctx context.Context, id, summary, summaryURL string, stats model.CaseStats) error
	Delete(ctx context.Context, id string) error
	OwnerAggregate(ctx context.Context, ownerID string) (model.UserStats, error)
}

// UserRepo maintains the owner side of the relationship.
type UserRepo interface {
	PushCaseID(ctx context.Context, id, caseID string) error
	PullCaseID(ctx context.Context, id, caseID string) error
	UpdateStats(ctx context.Context, id string, stats model.UserStats) error
}

// Blob is the binary object store.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Stream(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

// Snapshots is the advisory cache; all its operations degrade silently.
type Snapshots interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, v any)
	Invalidate(ctx context.Context, keys ...string)
}

// Summarizer calls the AI backend through the circuit breaker.
type Summarizer interface {
	Summarize(ctx context.Context, text string) summarize.Result
}

// Jobs schedules asynchronous summarization.
type Jobs interface {
	EnqueueSummarize(ctx context.Context, caseID, userID string) error
}

// DeleteResult partitions a batch delete into succeeded and failed ids.
// Partial failure is a normal, reportable outcome.
type DeleteResult struct {
	Succeeded []string `json:"success"`
	Failed    []string `json:"failed"`
}

// Service coordinates the case pipeline.
type Service struct {
	cases      CaseRepo
	users      UserRepo
	blobs      Blob
	snapshots  Snapshots
	summarizer Summarizer
	jobs       Jobs
	log        *slog.Logger

	extract func([]byte) (string, error)
	render  func(string) ([]byte, error)
}

// NewService wires the orchestrator.
func NewService(caseRepo CaseRepo, users UserRepo, blobs Blob, snapshots Snapshots,
	summarizer Summarizer, jobs Jobs, log *slog.Logger) *Service {
	return &Service{
		cases:      caseRepo,
		users:      users,
		blobs:      blobs,
		snapshots:  snapshots,
		summarizer: summarizer,
		jobs:       jobs,
		log:        log.With("component", "cases"),
		extract:    pdf.Extract,
		render:     pdf.RenderSummary,
	}
}

// Create uploads the source document, extracts its text, persists the case
// and schedules summarization. If any step after the upload fails, the source
// blob is removed again so a failed create leaves no orphaned object.
func (s *Service) Create(ctx context.Context, ownerID, title, description, fileName, contentType string, data []byte) (*model.Case, error) {
	if title == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "cases.create", "title is required")
	}
	if len(data) == 0 {
		return nil, apperr.Errorf(apperr.KindValidation, "cases.create", "file is required")
	}

	caseID := uuid.NewString()
	key := blob.SourceKey(ownerID, caseID, fileName)
	locator, err := s.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "cases.create", err)
	}
	compensate := func() {
		if err := s.blobs.Delete(ctx, locator); err != nil {
			s.log.Warn("orphaned source blob not removed", "locator", locator, "error", err)
		}
	}

	text, err := s.extract(data)
	if err != nil {
		compensate()
		return nil, err
	}

	now := time.Now().UTC()
	created := &model.Case{
		ID:          caseID,
		UserID:      ownerID,
		Title:       title,
		Description: description,
		FileURL:     locator,
		TextContent: text,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.cases.Create(ctx, created); err != nil {
		compensate()
		return nil, apperr.E(apperr.KindStorage, "cases.create", err)
	}
	if err := s.users.PushCaseID(ctx, ownerID, caseID); err != nil {
		return nil, apperr.E(apperr.KindStorage, "cases.create", err)
	}
	s.snapshots.Invalidate(ctx, cache.CaseListKey(ownerID))

	// The case is already a valid result; a failed enqueue only delays the
	// summary, it never fails the create.
	if err := s.jobs.EnqueueSummarize(ctx, caseID, ownerID); err != nil {
		s.log.Warn("summarize job not enqueued", "case_id", caseID, "error", err)
	}
	return created, nil
}

// SummarizeAndPersist runs the summarization half of the pipeline. An
// unavailable backend returns an upstream error so the job queue retries
// later; the case stays valid without a summary in the meantime.
func (s *Service) SummarizeAndPersist(ctx context.Context, caseID string) error {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted before the job ran; nothing to do.
			return nil
		}
		return fmt.Errorf("load case: %w", err)
	}
	if c.Summary != nil {
		return nil
	}
	if c.TextContent == "" {
		s.log.Warn("case has no extracted text, skipping summarization", "case_id", caseID)
		return nil
	}

	result := s.summarizer.Summarize(ctx, c.TextContent)
	if result.Status != summarize.StatusSuccess {
		return apperr.Errorf(apperr.KindUpstream, "cases.summarize", "summarization unavailable for case %s", caseID)
	}

	rendered, err := s.render(result.Summary)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	locator, err := s.blobs.Put(ctx, blob.SummaryKey(c.UserID, c.ID), rendered, "application/pdf")
	if err != nil {
		return apperr.E(apperr.KindStorage, "cases.summarize", err)
	}

	stats := model.CaseStats{
		OriginalLength:   int64(len(c.TextContent)),
		SummaryLength:    int64(len(result.Summary)),
		CompressionRatio: model.CompressionRatio(int64(len(c.TextContent)), int64(len(result.Summary))),
		ProcessingTime:   result.ProcessingTime,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.cases.SetSummary(ctx, c.ID, result.Summary, locator, stats); err != nil {
		return apperr.E(apperr.KindStorage, "cases.summarize", err)
	}
	if _, err := s.RecomputeStats(ctx, c.UserID); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, cache.CaseListKey(c.UserID))
	s.log.Info("case summarized", "case_id", c.ID, "compression_ratio", stats.CompressionRatio)
	return nil
}

// List is a cache-first read of the owner's cases in the listing projection.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.ListItem, error) {
	key := cache.CaseListKey(ownerID)
	var cached []model.ListItem
	if s.snapshots.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	items, err := s.cases.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "cases.list", err)
	}
	s.snapshots.SetJSON(ctx, key, items)
	return items, nil
}

// Get returns the full case detail, enforcing ownership. A case owned by
// someone else reads as not found.
func (s *Service) Get(ctx context.Context, ownerID, caseID string) (*model.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.E(apperr.KindNotFound, "cases.get", apperr.ErrNotFound)
		}
		return nil, apperr.E(apperr.KindStorage, "cases.get", err)
	}
	if c.UserID != ownerID {
		return nil, apperr.E(apperr.KindNotFound, "cases.get", apperr.ErrNotFound)
	}
	return c, nil
}

// Download streams the source document of an owned case. The second return
// value is the stored file name.
func (s *Service) Download(ctx context.Context, ownerID, caseID string) (io.ReadCloser, string, error) {
	c, err := s.Get(ctx, ownerID, caseID)
	if err != nil {
		return nil, "", err
	}
	stream, err := s.blobs.Stream(ctx, c.FileURL)
	if err != nil {
		return nil, "", apperr.E(apperr.KindStorage, "cases.download", err)
	}
	return stream, path.Base(c.FileURL), nil
}

// DeleteBatch deletes the given cases independently: ownership is checked per
// id, blob deletion is best-effort, and the result partitions ids into
// succeeded and failed. The owner's case-list cache is invalidated once after
// the whole batch.
func (s *Service) DeleteBatch(ctx context.Context, ownerID string, caseIDs []string) (*DeleteResult, error) {
	if len(caseIDs) == 0 {
		return nil, apperr.Errorf(apperr.KindValidation, "cases.delete", "caseIds must be a non-empty array")
	}
	result := &DeleteResult{Succeeded: []string{}, Failed: []string{}}
	for _, id := range caseIDs {
		if err := s.deleteOne(ctx, ownerID, id); err != nil {
			s.log.Warn("case not deleted", "case_id", id, "error", err)
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	s.snapshots.Invalidate(ctx, cache.CaseListKey(ownerID))
	return result, nil
}

func (s *Service) deleteOne(ctx context.Context, ownerID, caseID string) error {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if c.UserID != ownerID {
		return fmt.Errorf("case %s: %w", caseID, apperr.ErrNotFound)
	}
	if err := s.blobs.Delete(ctx, c.FileURL); err != nil {
		s.log.Warn("source blob not deleted", "case_id", caseID, "error", err)
	}
	if c.SummaryFileURL != nil {
		if err := s.blobs.Delete(ctx, *c.SummaryFileURL); err != nil {
			s.log.Warn("summary blob not deleted", "case_id", caseID, "error", err)
		}
	}
	if err := s.users.PullCaseID(ctx, ownerID, caseID); err != nil {
		return fmt.Errorf("pull case reference: %w", err)
	}
	if err := s.cases.Delete(ctx, caseID); err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	return nil
}

// RecomputeStats rescans the owner's cases and persists the aggregate
// snapshot.
func (s *Service) RecomputeStats(ctx context.Context, ownerID string) (model.UserStats, error) {
	stats, err := s.cases.OwnerAggregate(ctx, ownerID)
	if err != nil {
		return model.UserStats{}, apperr.E(apperr.KindStorage, "cases.stats", err)
	}
	if err := s.users.UpdateStats(ctx, ownerID, stats); err != nil {
		return model.UserStats{}, apperr.E(apperr.KindStorage, "cases.stats", err)
	}
	s.snapshots.Invalidate(ctx, cache.ProfileKey(ownerID))
	return stats, nil
}
