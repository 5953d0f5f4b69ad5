// gemini.go - Gemini generator with one cached client per credential

package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bosocmputer/lease_analyzer/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiGenerator calls the Gemini API. Clients are created lazily per key
// and reused across requests.
type GeminiGenerator struct {
	modelName string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiGenerator creates a generator for modelName
func NewGeminiGenerator(modelName string) *GeminiGenerator {
	return &GeminiGenerator{
		modelName: modelName,
		clients:   make(map[string]*genai.Client),
	}
}

// Name returns "gemini"
func (g *GeminiGenerator) Name() string {
	return "gemini"
}

func (g *GeminiGenerator) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	// the client outlives this request, so it must not inherit its deadline
	c, err := genai.NewClient(context.WithoutCancel(ctx), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Generate runs one GenerateContent call with apiKey
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey string, req Request) (*Response, error) {
	client, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, Categorize(err)
	}

	model := client.GenerativeModel(g.modelName)
	model.SetTemperature(req.Temperature)
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	model.SetMaxOutputTokens(maxTokens)
	if req.JSON {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = req.Schema
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, Categorize(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ProviderError{Category: CategoryEmptyResponse, Message: "no candidates returned"}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return nil, &ProviderError{Category: CategoryEmptyResponse, Message: "empty response text"}
	}

	out := &Response{
		Text:      sb.String(),
		Truncated: resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens,
	}
	if resp.UsageMetadata != nil {
		out.Usage = common.CalculateTokenCost(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	return out, nil
}

// Close releases every cached client
func (g *GeminiGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for key, c := range g.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.clients, key)
	}
	return firstErr
}
