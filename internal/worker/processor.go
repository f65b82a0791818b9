// Package worker plugs the case pipeline into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ozanyurt/caseflow/internal/apperr"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/queue"
)

// Processor handles summarization jobs and, in development stacks without a
// separate mailer, logs queued emails.
type Processor struct {
	cases *cases.Service
	log   *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(caseSvc *cases.Service, log *slog.Logger) *Processor {
	return &Processor{cases: caseSvc, log: log.With("component", "worker")}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SummarizeCaseTask, p.handleSummarize)
	mux.HandleFunc(queue.SendEmailTask, p.handleEmail)
	return mux
}

func (p *Processor) handleSummarize(ctx context.Context, task *asynq.Task) error {
	var payload queue.SummarizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	err := p.cases.SummarizeAndPersist(ctx, payload.CaseID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			// Backend degraded or circuit open: let asynq retry after backoff,
			// the case stays valid without a summary until then.
			p.log.Warn("summarization deferred", "case_id", payload.CaseID, "error", err)
			return err
		}
		p.log.Error("summarize job failed", "case_id", payload.CaseID, "error", err)
		return err
	}
	return nil
}

// handleEmail stands in for the external mailer in development: it logs the
// message and acknowledges it. A production stack points a real mailer at the
// same queue instead.
func (p *Processor) handleEmail(ctx context.Context, task *asynq.Task) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.To == "" {
		return errors.New("email payload missing recipient")
	}
	p.log.Info("email accepted for delivery",
		"to", payload.To, "subject", payload.Subject, "template", payload.Template)
	return nil
}
