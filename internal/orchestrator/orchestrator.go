// Package orchestrator runs one analysis request through authorization,
// extraction, the LLM and the best-effort bookkeeping that follows.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/ai"
	"github.com/bosocmputer/lease_analyzer/internal/clauses"
	"github.com/bosocmputer/lease_analyzer/internal/common"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/events"
	"github.com/bosocmputer/lease_analyzer/internal/metrics"
	"github.com/bosocmputer/lease_analyzer/internal/processor"
	"github.com/bosocmputer/lease_analyzer/internal/retry"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/bosocmputer/lease_analyzer/internal/traces"
)

// FallbackMessage is stored in error_message when the model output never parsed
const FallbackMessage = "Failed to parse structured analysis from AI response."

// LLM produces structured JSON text for a prompt
type LLM interface {
	GenerateStructured(ctx context.Context, sr ai.StructuredRequest) (*ai.StructuredResult, error)
}

// DocumentExtractor turns raw upload bytes into text or an image payload
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, declaredMIME string) (*processor.Payload, error)
}

// TemplateSource returns the caller's compliance template, nil when none
type TemplateSource interface {
	Get(ctx context.Context, userID string) (*storage.ComplianceTemplate, error)
}

// Request is one analysis submission. Either Text or Document is set.
type Request struct {
	UserID   string
	Text     string
	Document []byte
	MIMEType string
	FileName string
}

// Outcome is the user-visible result. AnalysisID is empty when persisting failed.
type Outcome struct {
	RequestID  string
	AnalysisID string
	Analysis   map[string]interface{}
	Structured bool
	Kind       processor.PayloadKind
	Method     string
	Engine     string
	TextHash   string
	Clauses    []clauses.Match
	Usage      entitlement.Usage
	Passes     int
	Summary    common.Summary
}

// Service wires the pipeline collaborators
type Service struct {
	profiles  entitlement.Store
	extractor DocumentExtractor
	llm       LLM
	analyses  storage.AnalysisStore
	templates TemplateSource
	library   *clauses.Library
	publisher events.Publisher
	strict    bool
	now       func() time.Time

	persistAttempts int
	persistDelay    time.Duration
}

type Option func(*Service)

func WithTemplates(t TemplateSource) Option { return func(s *Service) { s.templates = t } }

func WithClauseLibrary(l *clauses.Library) Option { return func(s *Service) { s.library = l } }

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithStrictQuota reserves the usage increment with a conditional update
// before any work is done, instead of counting after success
func WithStrictQuota(strict bool) Option { return func(s *Service) { s.strict = strict } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(profiles entitlement.Store, extractor DocumentExtractor, llm LLM, analyses storage.AnalysisStore, opts ...Option) *Service {
	s := &Service{
		profiles:        profiles,
		extractor:       extractor,
		llm:             llm,
		analyses:        analyses,
		publisher:       events.NopPublisher{},
		now:             time.Now,
		persistAttempts: 3,
		persistDelay:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs the full pipeline. Denials return *DeniedError; extraction
// failures wrap processor.ErrUnsupportedType or ErrUnreadableDocument; a
// failed model call wraps ErrAnalysisUnavailable. Once the model has
// answered, the request succeeds whatever happens to accounting and
// persistence.
func (s *Service) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	if req.Text == "" && len(req.Document) == 0 {
		return nil, ErrEmptyRequest
	}

	began := time.Now()
	start := s.now()
	rc := common.NewRequestContext(ctx, req.UserID)
	ctx, span := traces.StartSpan(ctx, "analysis", traces.UserID(req.UserID))
	var spanErr error
	defer func() {
		traces.End(span, spanErr)
		metrics.AnalysisDuration.Observe(time.Since(began).Seconds())
	}()

	// Authorizing
	rc.StartStep("authorize")
	profile, decision, err := s.authorize(ctx, req.UserID, start)
	if err != nil {
		rc.EndStep(common.StepFailed, nil, err)
		spanErr = err
		var denied *DeniedError
		if errors.As(err, &denied) {
			metrics.AnalysesTotal.WithLabelValues("denied").Inc()
		} else {
			metrics.AnalysesTotal.WithLabelValues("authorize_failed").Inc()
		}
		return nil, err
	}
	span.SetAttributes(traces.Tier(string(profile.SubscriptionTier)))
	rc.EndStep(common.StepSuccess, nil, nil)

	// Extracting
	rc.StartStep("extract")
	payload, err := s.extract(ctx, req)
	if err != nil {
		rc.EndStep(common.StepFailed, nil, err)
		spanErr = err
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		metrics.AnalysesTotal.WithLabelValues("extraction_failed").Inc()
		return nil, err
	}
	metrics.ExtractionsTotal.WithLabelValues(payload.Method).Inc()
	span.SetAttributes(traces.Method(payload.Method))
	rc.EndStep(common.StepSuccess, nil, nil)

	out := &Outcome{
		RequestID: rc.RequestID,
		Kind:      payload.Kind,
		Method:    payload.Method,
		Engine:    payload.Engine,
	}
	opts := ai.PromptOptions{ComplianceTemplate: s.template(ctx, rc, req.UserID)}
	if payload.Kind == processor.KindText {
		out.TextHash = clauses.TextHash(payload.Text)
		if s.library != nil {
			out.Clauses = s.library.Analyze(payload.Text)
			opts.Clauses = out.Clauses
		}
	}

	// Invoking LLM
	rc.StartStep("llm")
	sr := ai.StructuredRequest{Schema: ai.LeaseSchema()}
	if payload.Kind == processor.KindImage {
		sr.Prompt = ai.BuildImageAnalysisPrompt(opts)
		sr.Image = &ai.Blob{MIMEType: payload.MIMEType, Data: payload.Image}
	} else {
		sr.Prompt = ai.BuildLeaseAnalysisPrompt(payload.Text, opts)
	}
	result, err := s.llm.GenerateStructured(ctx, sr)
	if err != nil {
		rc.EndStep(common.StepFailed, nil, err)
		spanErr = err
		metrics.AnalysesTotal.WithLabelValues("llm_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	usage := result.Usage
	rc.EndStep(common.StepSuccess, &usage, nil)
	out.Passes = result.Passes

	// Parsing
	rc.StartStep("parse")
	out.Analysis, out.Structured = parseAnalysis(result.Text)
	if out.Structured {
		metrics.AnalysesTotal.WithLabelValues("structured").Inc()
		rc.EndStep(common.StepSuccess, nil, nil)
	} else {
		metrics.AnalysesTotal.WithLabelValues("fallback").Inc()
		rc.EndStep(common.StepFallback, nil, nil)
		rc.Warn("analysis stored as raw text", "passes", result.Passes)
	}

	// side effects outlive client cancellation
	bg := context.WithoutCancel(ctx)

	// Accounting
	rc.StartStep("account")
	counted := profile
	if !s.strict && !decision.Increment.IsZero() {
		if err := s.profiles.IncrementUsage(bg, req.UserID, decision.Increment, start); err != nil {
			rc.EndStep(common.StepFailed, nil, err)
			metrics.SideEffectFailuresTotal.WithLabelValues("accounting").Inc()
			s.publish(bg, rc, events.QueueAccountingFailed, events.AccountingFailed{
				RequestID: rc.RequestID,
				UserID:    req.UserID,
				Monthly:   decision.Increment.Monthly,
				Daily:     decision.Increment.Daily,
				Error:     err.Error(),
				At:        s.now().UTC(),
			})
		} else {
			counted = profile.WithIncrement(decision.Increment, start)
			rc.EndStep(common.StepSuccess, nil, nil)
		}
	} else {
		if s.strict {
			counted = profile.WithIncrement(decision.Increment, start)
		}
		rc.EndStep(common.StepSkipped, nil, nil)
	}
	out.Usage = entitlement.Status(counted, start)

	// Persisting
	rc.StartStep("persist")
	status := storage.StatusComplete
	if !out.Structured {
		status = storage.StatusError
	}
	record := &storage.AnalysisRecord{
		ID:         storage.NewAnalysisID(),
		UserID:     req.UserID,
		FileName:   req.FileName,
		Kind:       string(payload.Kind),
		Method:     payload.Method,
		Status:     status,
		Structured: out.Structured,
		Analysis:   out.Analysis,
		TextHash:   out.TextHash,
		Clauses:    out.Clauses,
		CreatedAt:  s.now().UTC(),
	}
	err = retry.Do(bg, s.persistAttempts, s.persistDelay, func() error {
		id, err := s.analyses.Save(bg, record)
		if err != nil {
			return err
		}
		out.AnalysisID = id
		return nil
	})
	if err != nil {
		rc.EndStep(common.StepFailed, nil, err)
		metrics.SideEffectFailuresTotal.WithLabelValues("persist").Inc()
	} else {
		rc.EndStep(common.StepSuccess, nil, nil)
	}

	s.publish(bg, rc, events.QueueAnalysisCompleted, events.AnalysisCompleted{
		RequestID:  rc.RequestID,
		UserID:     req.UserID,
		AnalysisID: out.AnalysisID,
		Kind:       string(payload.Kind),
		Method:     payload.Method,
		Structured: out.Structured,
		Tier:       string(profile.SubscriptionTier),
		At:         s.now().UTC(),
	})

	out.Summary = rc.Summary()
	return out, nil
}

// authorize loads the profile and applies the tier policy. In strict mode the
// increment is reserved here with a conditional update.
func (s *Service) authorize(ctx context.Context, userID string, now time.Time) (*entitlement.UserProfile, entitlement.Decision, error) {
	if userID == "" {
		d := entitlement.Authorize(nil, now)
		return nil, d, &DeniedError{Decision: d}
	}

	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, entitlement.Decision{}, fmt.Errorf("%w: %w", ErrEntitlementUnavailable, err)
	}

	decision := entitlement.Authorize(profile, now)
	if !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(string(decision.Reason), string(profile.SubscriptionTier)).Inc()
		return profile, decision, &DeniedError{Tier: profile.SubscriptionTier, Decision: decision}
	}
	if !s.strict || decision.Increment.IsZero() {
		return profile, decision, nil
	}

	ok, err := s.profiles.IncrementIfBelow(ctx, userID, decision.Increment, decision.Limits, now)
	if err != nil {
		return nil, entitlement.Decision{}, fmt.Errorf("%w: %w", ErrEntitlementUnavailable, err)
	}
	if ok {
		return profile, decision, nil
	}

	// lost a race; re-read to report the limit that is now exhausted
	latest, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, entitlement.Decision{}, fmt.Errorf("%w: %w", ErrEntitlementUnavailable, err)
	}
	denied := entitlement.Authorize(latest, now)
	if denied.Allowed {
		denied = entitlement.LostReservation(latest.SubscriptionTier, decision.Limits, now)
	}
	metrics.QuotaDenialsTotal.WithLabelValues(string(denied.Reason), string(latest.SubscriptionTier)).Inc()
	return latest, denied, &DeniedError{Tier: latest.SubscriptionTier, Decision: denied}
}

func (s *Service) extract(ctx context.Context, req Request) (*processor.Payload, error) {
	if req.Text != "" {
		return &processor.Payload{
			Kind:     processor.KindText,
			Text:     req.Text,
			MIMEType: "text/plain",
			Method:   processor.MethodPlainText,
		}, nil
	}
	return s.extractor.Extract(ctx, req.Document, req.MIMEType)
}

// template returns the caller's compliance template text; lookup errors are logged and ignored
func (s *Service) template(ctx context.Context, rc *common.RequestContext, userID string) string {
	if s.templates == nil {
		return ""
	}
	tpl, err := s.templates.Get(ctx, userID)
	if err != nil {
		rc.Warn("compliance template lookup failed", "error", err)
		return ""
	}
	if tpl == nil {
		return ""
	}
	return tpl.Content
}

func (s *Service) publish(ctx context.Context, rc *common.RequestContext, queue string, event any) {
	if err := s.publisher.Publish(ctx, queue, event); err != nil {
		metrics.SideEffectFailuresTotal.WithLabelValues("publish").Inc()
		rc.Warn("event not published", "queue", queue, "error", err)
	}
}

// parseAnalysis returns the decoded object, or the raw-text fallback record
func parseAnalysis(text string) (map[string]interface{}, bool) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed != nil {
		return parsed, true
	}
	return map[string]interface{}{
		"raw_analysis":  text,
		"error_message": FallbackMessage,
	}, false
}
