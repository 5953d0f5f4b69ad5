// textlayer.go - Text-layer extraction from PDFs

package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the embedded text of a PDF
type TextLayer interface {
	Name() string
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// GoPDFText reads the text layer in-process
type GoPDFText struct{}

func (GoPDFText) Name() string { return "gopdf" }

func (GoPDFText) ExtractText(_ context.Context, data []byte) (text string, err error) {
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// PopplerText shells out to pdftotext, which copes with more encodings
type PopplerText struct{}

func (PopplerText) Name() string { return "pdftotext" }

func (PopplerText) ExtractText(ctx context.Context, data []byte) (string, error) {
	var out []byte
	err := withTempFile(data, "in.pdf", func(_, path string) error {
		var err error
		out, err = runTool(ctx, "pdftotext", nil, "-layout", "-enc", "UTF-8", path, "-")
		return err
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// normalizeText collapses runs of blank lines and trailing spaces
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
