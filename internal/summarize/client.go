// Package summarize calls the external AI summarization service through a
// shared circuit breaker. The breaker is process-wide on purpose: once the
// backend is known to be unhealthy, no in-flight request should keep hammering
// it until the cool-down elapses.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ozanyurt/caseflow/internal/config"
)

// Result statuses. Unavailable is a valid, non-fatal outcome: the case keeps
// existing without a summary.
const (
	StatusSuccess     = "success"
	StatusUnavailable = "unavailable"
)

// Result is the outcome of a summarization attempt.
type Result struct {
	Status         string
	Summary        string
	ProcessingTime float64
}

type apiResponse struct {
	Status         string  `json:"status"`
	Summary        string  `json:"summary"`
	ProcessingTime float64 `json:"processingTime"`
}

// Client wraps the summarization endpoint with a timeout and circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[apiResponse]
	log     *slog.Logger
}

// New builds a Client. The breaker opens once the rolling failure ratio
// crosses cfg.BreakerFailRate (with at least cfg.BreakerMinCalls samples) and
// half-opens after cfg.BreakerCooldown.
func New(cfg *config.Config, log *slog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:        "summarize",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinCalls {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailRate
		},
	}
	clientLog := log.With("component", "summarize")
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		clientLog.Warn("circuit state change", "from", from.String(), "to", to.String())
	}
	return &Client{
		baseURL: cfg.AIServiceURL,
		http:    &http.Client{Timeout: cfg.SummarizeTimeout},
		breaker: gobreaker.NewCircuitBreaker[apiResponse](settings),
		log:     clientLog,
	}
}

// Summarize sends text to the AI service. Failures, timeouts and an open
// circuit all degrade to a StatusUnavailable result with a nil error; callers
// must treat that as "retry later", never as a case-creation failure.
func (c *Client) Summarize(ctx context.Context, text string) Result {
	resp, err := c.breaker.Execute(func() (apiResponse, error) {
		return c.call(ctx, text)
	})
	if err != nil {
		c.log.Warn("summarization unavailable", "error", err)
		return Result{Status: StatusUnavailable}
	}
	return Result{Status: StatusSuccess, Summary: resp.Summary, ProcessingTime: resp.ProcessingTime}
}

func (c *Client) call(ctx context.Context, text string) (apiResponse, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return apiResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("post summarize: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("summarize returned %d", res.StatusCode)
	}
	var decoded apiResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Status != StatusSuccess || decoded.Summary == "" {
		return apiResponse{}, fmt.Errorf("summarize status %q", decoded.Status)
	}
	if decoded.ProcessingTime == 0 {
		decoded.ProcessingTime = time.Since(started).Seconds()
	}
	return decoded, nil
}
