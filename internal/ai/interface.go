// interface.go - Provider-neutral generation contract used by the credential pool

package ai

import (
	"context"

	"github.com/bosocmputer/lease_analyzer/internal/common"
	"github.com/google/generative-ai-go/genai"
)

// Blob is an inline binary part sent alongside a prompt
type Blob struct {
	MIMEType string
	Data     []byte
}

// Request is one generation call
type Request struct {
	Prompt string
	Image  *Blob

	Temperature     float32
	MaxOutputTokens int32

	// JSON asks the provider for application/json output; Schema is optional
	JSON   bool
	Schema *genai.Schema
}

// Response is the provider output of one call
type Response struct {
	Text      string
	Truncated bool
	Usage     common.TokenUsage
}

// Generator performs a single call with one credential. Implementations
// return *ProviderError (or an error that Categorize understands) so the
// pool can decide whether another credential is worth trying.
type Generator interface {
	Generate(ctx context.Context, apiKey string, req Request) (*Response, error)
	Name() string
}
