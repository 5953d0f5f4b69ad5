// Package events publishes domain events to RabbitMQ. Publishing is best
// effort: errors are returned so callers can log them, never to fail a request.
package events

import (
	"context"
	"time"
)

const (
	QueueAnalysisCompleted = "analysis.completed"
	QueueAccountingFailed  = "usage.accounting_failed"
)

// AnalysisCompleted is emitted after an analysis result was produced
type AnalysisCompleted struct {
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Kind       string    `json:"kind"`
	Method     string    `json:"method"`
	Structured bool      `json:"structured"`
	Tier       string    `json:"tier"`
	At         time.Time `json:"at"`
}

// AccountingFailed is emitted when a usage increment could not be written,
// so the charge can be reconciled later
type AccountingFailed struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Monthly   bool      `json:"monthly"`
	Daily     bool      `json:"daily"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error { return nil }
