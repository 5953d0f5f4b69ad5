// factory.go - OCR engine selection with automatic fallback

package ai

import (
	"log/slog"

	"github.com/bosocmputer/lease_analyzer/internal/processor"
)

// OCRSettings selects and configures OCR engines
type OCRSettings struct {
	// Provider is the primary engine: "gemini", "mistral" or "tesseract"
	Provider string

	MistralAPIKey string
	MistralModel  string
	TesseractLang string
}

// CreateOCREngines returns engines in fallback order: the configured
// provider first, then every other engine that is usable.
func CreateOCREngines(settings OCRSettings, pool *Pool, logger *slog.Logger) []processor.OCREngine {
	available := map[string]processor.OCREngine{
		"tesseract": processor.NewTesseractOCR(settings.TesseractLang),
	}
	if pool != nil {
		available["gemini"] = NewPoolOCR(pool)
	}
	if settings.MistralAPIKey != "" {
		available["mistral"] = NewMistralOCR(settings.MistralAPIKey, settings.MistralModel)
	}

	order := []string{settings.Provider, "gemini", "mistral", "tesseract"}
	seen := make(map[string]bool, len(order))
	var engines []processor.OCREngine
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		if engine, ok := available[name]; ok {
			engines = append(engines, engine)
		} else if name == settings.Provider && name != "" {
			logger.Warn("configured OCR provider unavailable, using fallbacks", "provider", name)
		}
	}

	names := make([]string, 0, len(engines))
	for _, e := range engines {
		names = append(names, e.Name())
	}
	logger.Info("OCR engines configured", "order", names)
	return engines
}
