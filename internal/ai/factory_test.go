package ai

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func engineNames(settings OCRSettings, pool *Pool) []string {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var names []string
	for _, e := range CreateOCREngines(settings, pool, logger) {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateOCREngines_Order(t *testing.T) {
	pool, _ := NewPool([]string{"k"}, newStub())

	assert.Equal(t, []string{"gemini", "mistral", "tesseract"},
		engineNames(OCRSettings{Provider: "gemini", MistralAPIKey: "m"}, pool))

	assert.Equal(t, []string{"mistral", "gemini", "tesseract"},
		engineNames(OCRSettings{Provider: "mistral", MistralAPIKey: "m"}, pool))

	assert.Equal(t, []string{"tesseract", "gemini"},
		engineNames(OCRSettings{Provider: "tesseract"}, pool))

	// mistral without a key falls back silently
	assert.Equal(t, []string{"gemini", "tesseract"},
		engineNames(OCRSettings{Provider: "mistral"}, pool))
}
