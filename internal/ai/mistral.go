// mistral.go - Mistral OCR engine

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/logging"
)

const mistralOCRURL = "https://api.mistral.ai/v1/ocr"

// MistralOCR reads documents through the Mistral OCR API. PDFs and images
// are sent inline as data URIs.
type MistralOCR struct {
	apiKey    string
	modelName string
	endpoint  string
	client    *http.Client
}

// NewMistralOCR creates a Mistral OCR engine
func NewMistralOCR(apiKey, modelName string) *MistralOCR {
	return &MistralOCR{
		apiKey:    apiKey,
		modelName: modelName,
		endpoint:  mistralOCRURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name returns "mistral"
func (m *MistralOCR) Name() string {
	return "mistral"
}

type mistralOCRDocument struct {
	Type        string `json:"type"` // "image_url" or "document_url"
	ImageURL    string `json:"image_url,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRResponse struct {
	Model     string           `json:"model"`
	Pages     []mistralOCRPage `json:"pages"`
	UsageInfo struct {
		PagesProcessed int `json:"pages_processed"`
	} `json:"usage_info"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// Recognize returns the markdown of every page joined by blank lines
func (m *MistralOCR) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if m.apiKey == "" {
		return "", &ProviderError{Category: CategoryInvalidCredential, Message: "Mistral API key not configured"}
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	doc := mistralOCRDocument{Type: "image_url", ImageURL: dataURI}
	if mimeType == "application/pdf" {
		doc = mistralOCRDocument{Type: "document_url", DocumentURL: dataURI}
	}

	resp, err := m.call(ctx, mistralOCRRequest{Model: m.modelName, Document: doc})
	if err != nil {
		return "", err
	}
	if len(resp.Pages) == 0 {
		return "", &ProviderError{Category: CategoryEmptyResponse, Message: "no pages returned from Mistral OCR"}
	}

	var b strings.Builder
	for i, page := range resp.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(page.Markdown)
	}
	logging.L(ctx).Info("mistral ocr finished", "pages", resp.UsageInfo.PagesProcessed, "chars", b.Len())
	return b.String(), nil
}

func (m *MistralOCR) call(ctx context.Context, request mistralOCRRequest) (*mistralOCRResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, Categorize(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		var errResp mistralErrorResponse
		if json.Unmarshal(raw, &errResp) == nil {
			if errResp.Error.Message != "" {
				msg = errResp.Error.Message
			} else if errResp.Message != "" {
				msg = errResp.Message
			}
		}
		pe := Categorize(&httpStatusError{code: resp.StatusCode, msg: msg})
		return nil, pe
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	return &out, nil
}

// httpStatusError lets Categorize classify plain HTTP failures
type httpStatusError struct {
	code int
	msg  string
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("mistral OCR API error (%d): %s", e.code, e.msg) }
func (e *httpStatusError) HTTPCode() int { return e.code }
