// extractor.go - Ordered fallback chain that turns an upload into analyzable content

package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bosocmputer/lease_analyzer/internal/logging"
)

var (
	ErrUnsupportedType    = errors.New("unsupported document type")
	ErrUnreadableDocument = errors.New("unable to read document")
)

// PayloadKind tells the LLM layer whether to send text or an image part
type PayloadKind string

const (
	KindText  PayloadKind = "text"
	KindImage PayloadKind = "image"
)

// Extraction methods
const (
	MethodPlainText   = "plain_text"
	MethodTextLayer   = "text_layer"
	MethodRaster      = "raster"
	MethodOCR         = "ocr"
	MethodImageUpload = "image_upload"
	MethodShortText   = "short_text"
)

// Payload is the extractor output: either Text or Image is set
type Payload struct {
	Kind     PayloadKind
	Text     string
	Image    []byte
	MIMEType string
	Method   string
	Engine   string
}

// Extractor runs text layer, rasterization and OCR in order
type Extractor struct {
	minChars   int
	textLayers []TextLayer
	rasterizer Rasterizer
	ocr        []OCREngine
	imageOpts  PreprocessOptions
}

// Option configures an Extractor
type Option func(*Extractor)

// WithTextLayers replaces the text-layer readers
func WithTextLayers(layers ...TextLayer) Option {
	return func(e *Extractor) { e.textLayers = layers }
}

// WithRasterizer sets the first-page rasterizer; nil disables the image fallback
func WithRasterizer(r Rasterizer) Option {
	return func(e *Extractor) { e.rasterizer = r }
}

// WithOCR sets OCR engines in priority order
func WithOCR(engines ...OCREngine) Option {
	return func(e *Extractor) { e.ocr = engines }
}

// WithImageOptions sets preprocessing for image payloads
func WithImageOptions(opts PreprocessOptions) Option {
	return func(e *Extractor) { e.imageOpts = opts }
}

// NewExtractor builds an extractor. Text shorter than minChars after
// trimming is treated as missing.
func NewExtractor(minChars int, opts ...Option) *Extractor {
	e := &Extractor{
		minChars:   minChars,
		textLayers: []TextLayer{GoPDFText{}, PopplerText{}},
		imageOpts:  DefaultPreprocessOptions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectMIME trusts a specific declared type and sniffs otherwise
func DetectMIME(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := http.DetectContentType(data)
	return strings.Split(sniffed, ";")[0]
}

// Extract returns text or an image ready for the LLM
func (e *Extractor) Extract(ctx context.Context, data []byte, declaredMIME string) (*Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", ErrUnreadableDocument)
	}

	mimeType := DetectMIME(data, declaredMIME)
	switch {
	case mimeType == "application/pdf":
		return e.extractPDF(ctx, data)
	case strings.HasPrefix(mimeType, "text/"):
		return e.extractPlain(data)
	case strings.HasPrefix(mimeType, "image/"):
		return e.imagePayload(data, mimeType, MethodImageUpload, ""), nil
	default:
		return nil, fmt.Errorf("%s: %w", mimeType, ErrUnsupportedType)
	}
}

func (e *Extractor) extractPlain(data []byte) (*Payload, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text is not valid UTF-8: %w", ErrUnreadableDocument)
	}
	text := normalizeText(string(data))
	if text == "" {
		return nil, fmt.Errorf("text is empty: %w", ErrUnreadableDocument)
	}
	return &Payload{Kind: KindText, Text: text, MIMEType: "text/plain", Method: MethodPlainText}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (*Payload, error) {
	logger := logging.L(ctx)
	var errs []error
	shortText, shortEngine := "", ""

	for _, layer := range e.textLayers {
		text, err := layer.ExtractText(ctx, data)
		if err != nil {
			logger.Debug("text layer failed", "engine", layer.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		text = normalizeText(text)
		if utf8.RuneCountInString(text) >= e.minChars {
			return &Payload{Kind: KindText, Text: text, MIMEType: "text/plain", Method: MethodTextLayer, Engine: layer.Name()}, nil
		}
		if len(text) > len(shortText) {
			shortText, shortEngine = text, layer.Name()
		}
	}

	if e.rasterizer != nil {
		img, mimeType, err := e.rasterizer.Rasterize(ctx, data)
		if err == nil {
			logger.Info("text layer too short, using page image", "chars", len(shortText), "engine", e.rasterizer.Name())
			return e.imagePayload(img, mimeType, MethodRaster, e.rasterizer.Name()), nil
		}
		logger.Warn("rasterization failed", "error", err)
		errs = append(errs, err)
	}

	for _, engine := range e.ocr {
		text, err := engine.Recognize(ctx, data, "application/pdf")
		if err != nil {
			logger.Warn("ocr engine failed", "engine", engine.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		if text = normalizeText(text); text != "" {
			return &Payload{Kind: KindText, Text: text, MIMEType: "text/plain", Method: MethodOCR, Engine: engine.Name()}, nil
		}
	}

	if shortText != "" {
		logger.Warn("all fallbacks failed, analysing short text layer", "chars", len(shortText))
		return &Payload{Kind: KindText, Text: shortText, MIMEType: "text/plain", Method: MethodShortText, Engine: shortEngine}, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableDocument, errors.Join(errs...))
	}
	return nil, ErrUnreadableDocument
}

// imagePayload preprocesses when the format is decodable and keeps the original otherwise
func (e *Extractor) imagePayload(data []byte, mimeType, method, engine string) *Payload {
	if processed, outMIME, err := PreprocessImage(data, e.imageOpts); err == nil {
		data, mimeType = processed, outMIME
	}
	return &Payload{Kind: KindImage, Image: data, MIMEType: mimeType, Method: method, Engine: engine}
}
