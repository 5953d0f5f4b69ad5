// pool.go - Credential-rotating LLM client with two-pass JSON repair

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/common"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/bosocmputer/lease_analyzer/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
)

// ErrCredentialsExhausted is matched by errors.Is when every key was rejected
var ErrCredentialsExhausted = errors.New("ai: all provider credentials were rejected")

// Sampling temperatures of the two structured passes
const (
	extractionTemperature = 0.2
	repairTemperature     = 0.0
)

// KeyFailure records one rejected attempt
type KeyFailure struct {
	Index int
	Err   *ProviderError
}

// CallError is a failed logical call. Last is the final provider error.
type CallError struct {
	Last      *ProviderError
	Failures  []KeyFailure
	Exhausted bool
}

func (e *CallError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("all %d credentials failed, last error: %v", len(e.Failures), e.Last)
	}
	return fmt.Sprintf("llm call failed: %v", e.Last)
}

func (e *CallError) Unwrap() []error {
	if e.Exhausted {
		return []error{ErrCredentialsExhausted, e.Last}
	}
	return []error{e.Last}
}

// Result is a successful call
type Result struct {
	Text       string
	Truncated  bool
	Usage      common.TokenUsage
	KeyIndex   int
	FailedKeys []KeyFailure
}

// Pool owns the credential cursor and the generator. One Pool is built at
// startup and shared by every request.
type Pool struct {
	keys    *KeyPool
	gen     Generator
	limiter *ratelimit.RateLimiter
	timeout time.Duration
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithRateLimiter paces every provider call through rl
func WithRateLimiter(rl *ratelimit.RateLimiter) PoolOption {
	return func(p *Pool) { p.limiter = rl }
}

// WithTimeout bounds each provider call
func WithTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// NewPool builds a pool over keys
func NewPool(keys []string, gen Generator, opts ...PoolOption) (*Pool, error) {
	kp, err := NewKeyPool(keys)
	if err != nil {
		return nil, err
	}
	p := &Pool{keys: kp, gen: gen, timeout: 90 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size is the number of credentials
func (p *Pool) Size() int {
	return p.keys.Len()
}

// Generate performs one logical call. An invalid credential moves on to the
// next key, at most once around the list; any other error ends the call.
func (p *Pool) Generate(ctx context.Context, req Request) (*Result, error) {
	logger := logging.L(ctx)
	var failures []KeyFailure

	for attempt := 0; attempt < p.keys.Len(); attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, &CallError{Last: Categorize(err), Failures: failures}
			}
		}

		idx, key := p.keys.Next()
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, err := p.gen.Generate(callCtx, key, req)
		cancel()

		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues(strconv.Itoa(idx), "success").Inc()
			if resp.Truncated {
				logger.Warn("llm response truncated at max tokens", "credential", idx)
			}
			return &Result{
				Text:       resp.Text,
				Truncated:  resp.Truncated,
				Usage:      resp.Usage,
				KeyIndex:   idx,
				FailedKeys: failures,
			}, nil
		}

		pe := Categorize(err)
		metrics.LLMCallsTotal.WithLabelValues(strconv.Itoa(idx), pe.Category).Inc()
		failures = append(failures, KeyFailure{Index: idx, Err: pe})

		if !pe.InvalidCredential() {
			logger.Error("llm call failed", "provider", p.gen.Name(), "credential", idx, "category", pe.Category, "error", pe.OriginalError)
			return nil, &CallError{Last: pe, Failures: failures}
		}
		logger.Warn("credential rejected, rotating", "provider", p.gen.Name(), "credential", idx)
	}

	last := failures[len(failures)-1].Err
	logger.Error("all credentials rejected", "provider", p.gen.Name(), "attempts", len(failures), "error", last.OriginalError)
	return nil, &CallError{Last: last, Failures: failures, Exhausted: true}
}

// StructuredRequest is the input of GenerateStructured
type StructuredRequest struct {
	Prompt string
	Image  *Blob
	Schema *genai.Schema

	// SchemaHint is embedded in the repair prompt; GetOutputFormatJSON when empty
	SchemaHint string
}

// StructuredResult is the best JSON text obtained. Valid is true only when
// the first pass parsed; the repair pass output is returned unvalidated.
type StructuredResult struct {
	Text       string
	Passes     int
	Valid      bool
	Truncated  bool
	Usage      common.TokenUsage
	KeyIndex   int
	FailedKeys []KeyFailure

	// RepairErr is set when the repair call itself failed and Text is the first-pass output
	RepairErr error
}

// GenerateStructured runs the extraction prompt and, only when its output
// does not parse, one repair pass over that output.
func (p *Pool) GenerateStructured(ctx context.Context, sr StructuredRequest) (*StructuredResult, error) {
	first, err := p.Generate(ctx, Request{
		Prompt:      sr.Prompt,
		Image:       sr.Image,
		Temperature: extractionTemperature,
		JSON:        true,
		Schema:      sr.Schema,
	})
	if err != nil {
		return nil, err
	}

	out := &StructuredResult{
		Text:       CleanJSON(first.Text),
		Passes:     1,
		Truncated:  first.Truncated,
		Usage:      first.Usage,
		KeyIndex:   first.KeyIndex,
		FailedKeys: first.FailedKeys,
	}
	if json.Valid([]byte(out.Text)) {
		out.Valid = true
		metrics.JSONRepairPassesTotal.WithLabelValues("1").Inc()
		return out, nil
	}

	hint := sr.SchemaHint
	if hint == "" {
		hint = GetOutputFormatJSON()
	}
	logging.L(ctx).Warn("structured output did not parse, requesting repair", "chars", len(first.Text), "truncated", first.Truncated)

	out.Passes = 2
	metrics.JSONRepairPassesTotal.WithLabelValues("2").Inc()
	second, err := p.Generate(ctx, Request{
		Prompt:      BuildRepairPrompt(hint, first.Text),
		Temperature: repairTemperature,
		JSON:        true,
		Schema:      sr.Schema,
	})
	if err != nil {
		logging.L(ctx).Error("repair pass failed, keeping first-pass output", "error", err)
		out.RepairErr = err
		return out, nil
	}

	out.Text = CleanJSON(second.Text)
	out.Truncated = second.Truncated
	out.Usage.Add(second.Usage)
	out.KeyIndex = second.KeyIndex
	out.FailedKeys = append(out.FailedKeys, second.FailedKeys...)
	return out, nil
}
