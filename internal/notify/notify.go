// Package notify submits template emails to the notification queue. Dispatch
// is fire-and-forget from the mailer's perspective, but a failed enqueue is
// returned to the caller: an OTP that was never queued must not be treated as
// sent.
package notify

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/ozanyurt/caseflow/internal/queue"
)

// Template names consumed by the mailer.
const (
	TemplateOTP           = "otpVerification"
	TemplateWelcome       = "welcome"
	TemplatePasswordReset = "passwordReset"
)

// Dispatcher enqueues outbound notifications.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher builds a Dispatcher over an asynq client.
func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// SendOTPEmail queues the verification code email.
func (d *Dispatcher) SendOTPEmail(ctx context.Context, email, code string) error {
	return queue.EnqueueEmail(ctx, d.client, queue.EmailPayload{
		To:           email,
		Subject:      "Your verification code",
		Template:     TemplateOTP,
		TemplateData: map[string]string{"otp": code},
	})
}

// SendWelcomeEmail queues the post-verification welcome email.
func (d *Dispatcher) SendWelcomeEmail(ctx context.Context, email, username string) error {
	return queue.EnqueueEmail(ctx, d.client, queue.EmailPayload{
		To:           email,
		Subject:      "Welcome to CaseFlow",
		Template:     TemplateWelcome,
		TemplateData: map[string]string{"username": username},
	})
}

// SendPasswordResetEmail queues the password-reset email.
func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	return queue.EnqueueEmail(ctx, d.client, queue.EmailPayload{
		To:           email,
		Subject:      "Password reset request",
		Template:     TemplatePasswordReset,
		TemplateData: map[string]string{"otp": code},
	})
}
