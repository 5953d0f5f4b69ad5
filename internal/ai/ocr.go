// ocr.go - Gemini-backed OCR engine that shares the credential pool

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/bosocmputer/lease_analyzer/internal/processor"
)

// PoolOCR transcribes documents with the analysis model
type PoolOCR struct {
	pool *Pool
}

// NewPoolOCR wraps pool as an OCR engine
func NewPoolOCR(pool *Pool) *PoolOCR {
	return &PoolOCR{pool: pool}
}

// Name returns "gemini"
func (o *PoolOCR) Name() string {
	return "gemini"
}

// Recognize sends the document inline with a transcription-only prompt
func (o *PoolOCR) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if strings.HasPrefix(mimeType, "image/") {
		opts := processor.PreprocessOptions{Mode: processor.HighQualityMode, MaxDimension: 2500}
		if processed, outMIME, err := processor.PreprocessImage(data, opts); err == nil {
			data, mimeType = processed, outMIME
		}
	}

	res, err := o.pool.Generate(ctx, Request{
		Prompt:      GetPureOCRPrompt(),
		Image:       &Blob{MIMEType: mimeType, Data: data},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("gemini OCR failed: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
