// Package queue defines the asynq task types exchanged between the API server
// and the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// SummarizeCaseTask is scheduled after a case is created with extracted text.
	SummarizeCaseTask = "case:summarize"
	// SendEmailTask carries an outbound notification. The mailer consumes the
	// same queue; the core only needs "accepted for delivery".
	SendEmailTask = "email:send"
)

// SummarizePayload identifies the case the worker should summarize.
type SummarizePayload struct {
	CaseID string `json:"case_id"`
	UserID string `json:"user_id"`
}

// EmailPayload describes an email-like notification by template name.
type EmailPayload struct {
	To           string            `json:"to"`
	Subject      string            `json:"subject"`
	Template     string            `json:"template"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

// Jobs hands summarization work to the worker. It exists so services can be
// tested without a Redis-backed asynq client.
type Jobs struct {
	client *asynq.Client
}

// NewJobs wraps an asynq client.
func NewJobs(client *asynq.Client) *Jobs {
	return &Jobs{client: client}
}

// EnqueueSummarize schedules summarization for a freshly created case.
func (j *Jobs) EnqueueSummarize(ctx context.Context, caseID, userID string) error {
	return EnqueueSummarize(ctx, j.client, SummarizePayload{CaseID: caseID, UserID: userID})
}

// EnqueueSummarize enqueues a case summarization job.
func EnqueueSummarize(ctx context.Context, client *asynq.Client, payload SummarizePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(SummarizeCaseTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue summarize task: %w", err)
	}
	return nil
}

// EnqueueEmail submits a notification for delivery.
func EnqueueEmail(ctx context.Context, client *asynq.Client, payload EmailPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(SendEmailTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue email task: %w", err)
	}
	return nil
}
