// request_context.go - Per-analysis step timing and token accounting

package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/bosocmputer/lease_analyzer/configs"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/google/uuid"
)

// Step outcomes recorded by EndStep
const (
	StepSuccess  = "success"
	StepFailed   = "failed"
	StepSkipped  = "skipped"
	StepFallback = "fallback"
)

// RequestContext follows one analysis through its pipeline steps. It is not
// safe for concurrent use; each request owns its own.
type RequestContext struct {
	RequestID string
	UserID    string
	StartTime time.Time
	Steps     []StepLog
	Tokens    TokenUsage

	open    string
	openAt  time.Time
	logger  *slog.Logger
	elapsed func(time.Time) time.Duration
}

type StepLog struct {
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	Duration int64       `json:"duration_ms"`
	Tokens   *TokenUsage `json:"tokens,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// TokenUsage tracks LLM token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.TotalTokens += other.TotalTokens
	t.CostUSD += other.CostUSD
}

// CalculateTokenCost prices a call with the configured Gemini rates
func CalculateTokenCost(inputTokens, outputTokens int) TokenUsage {
	perToken := func(price float64, n int) float64 { return float64(n) * price / 1_000_000 }
	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD: perToken(configs.GEMINI_INPUT_PRICE_PER_MILLION, inputTokens) +
			perToken(configs.GEMINI_OUTPUT_PRICE_PER_MILLION, outputTokens),
	}
}

// NewRequestContext reuses the request id already on ctx, generating one for
// calls that did not come through the HTTP middleware.
func NewRequestContext(ctx context.Context, userID string) *RequestContext {
	id := logging.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	rc := &RequestContext{
		RequestID: id,
		UserID:    userID,
		StartTime: time.Now(),
		logger:    logging.FromContext(ctx).With("request_id", id, "user_id", userID),
		elapsed:   time.Since,
	}
	rc.logger.Info("analysis started")
	return rc
}

// StartStep opens a step. An unfinished previous step is dropped.
func (rc *RequestContext) StartStep(name string) {
	rc.open, rc.openAt = name, time.Now()
	rc.logger.Debug("step started", "step", name)
}

// EndStep closes the open step. Tokens, when given, count towards the
// request total.
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	if rc.open == "" {
		return
	}
	step := StepLog{
		Name:     rc.open,
		Status:   status,
		Duration: rc.elapsed(rc.openAt).Milliseconds(),
		Tokens:   tokens,
	}
	if err != nil {
		step.Error = err.Error()
	}
	if tokens != nil {
		rc.Tokens.Add(*tokens)
	}
	rc.Steps = append(rc.Steps, step)
	rc.open = ""

	attrs := []any{"step", step.Name, "status", status, "duration_ms", step.Duration}
	if err != nil {
		rc.logger.Warn("step failed", append(attrs, "error", err)...)
		return
	}
	if tokens != nil {
		attrs = append(attrs, "tokens", tokens.TotalTokens, "cost_usd", tokens.CostUSD)
	}
	rc.logger.Info("step finished", attrs...)
}

// Warn logs against the request without closing the open step
func (rc *RequestContext) Warn(msg string, args ...any) {
	rc.logger.Warn(msg, append(args, "step", rc.open)...)
}

// Summary is the per-request breakdown returned in response metadata
type Summary struct {
	RequestID       string           `json:"request_id"`
	TotalDurationMS int64            `json:"total_duration_ms"`
	StepDurations   map[string]int64 `json:"step_breakdown"`
	Completed       []string         `json:"completed_steps"`
	Tokens          TokenUsage       `json:"token_usage"`
}

// Summary closes out the request and logs the totals once
func (rc *RequestContext) Summary() Summary {
	s := Summary{
		RequestID:       rc.RequestID,
		TotalDurationMS: rc.elapsed(rc.StartTime).Milliseconds(),
		StepDurations:   make(map[string]int64, len(rc.Steps)),
		Completed:       []string{},
		Tokens:          rc.Tokens,
	}
	for _, step := range rc.Steps {
		s.StepDurations[step.Name] = step.Duration
		if step.Status == StepSuccess {
			s.Completed = append(s.Completed, step.Name)
		}
	}
	rc.logger.Info("analysis finished",
		"duration_ms", s.TotalDurationMS,
		"steps", len(rc.Steps),
		"tokens", s.Tokens.TotalTokens,
		"cost_usd", s.Tokens.CostUSD)
	return s
}
