// ocr.go - OCR engine contract and the local tesseract engine

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// OCREngine turns a document or page image into text
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

// TesseractOCR runs the tesseract binary. PDFs are rasterized page by page
// at a higher resolution than the LLM preview.
type TesseractOCR struct {
	Lang string
	DPI  int
}

// NewTesseractOCR creates a tesseract engine for lang ("eng" when empty)
func NewTesseractOCR(lang string) *TesseractOCR {
	if lang == "" {
		lang = "eng"
	}
	return &TesseractOCR{Lang: lang, DPI: 300}
}

func (t *TesseractOCR) Name() string { return "tesseract" }

func (t *TesseractOCR) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType != "application/pdf" {
		return t.recognizeImage(ctx, data)
	}

	var pages []string
	err := withTempFile(data, "in.pdf", func(dir, path string) error {
		if _, err := runTool(ctx, "pdftoppm", nil, "-png", "-gray", "-r", fmt.Sprint(t.DPI), path, filepath.Join(dir, "p")); err != nil {
			return err
		}
		files, err := filepath.Glob(filepath.Join(dir, "p*.png"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		for _, f := range files {
			img, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			text, err := t.recognizeImage(ctx, img)
			if err != nil {
				return err
			}
			pages = append(pages, text)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return strings.Join(pages, "\n\n"), nil
}

func (t *TesseractOCR) recognizeImage(ctx context.Context, img []byte) (string, error) {
	out, err := runTool(ctx, "tesseract", img, "stdin", "stdout", "-l", t.Lang)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
