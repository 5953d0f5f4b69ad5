// raster.go - First-page rasterization of PDFs

package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Rasterizer renders the first page of a PDF as an image
type Rasterizer interface {
	Name() string
	Rasterize(ctx context.Context, pdf []byte) ([]byte, string, error)
}

// CLIRasterizer uses pdftoppm and falls back to ImageMagick
type CLIRasterizer struct {
	DPI int
}

// NewCLIRasterizer returns a rasterizer at dpi (150 when zero)
func NewCLIRasterizer(dpi int) *CLIRasterizer {
	if dpi <= 0 {
		dpi = 150
	}
	return &CLIRasterizer{DPI: dpi}
}

func (r *CLIRasterizer) Name() string { return "pdftoppm" }

// Available reports whether any backend binary is installed
func (r *CLIRasterizer) Available() bool {
	return toolAvailable("pdftoppm") || toolAvailable("magick")
}

func (r *CLIRasterizer) Rasterize(ctx context.Context, data []byte) ([]byte, string, error) {
	var png []byte
	err := withTempFile(data, "in.pdf", func(dir, path string) error {
		var errs []error

		prefix := filepath.Join(dir, "page")
		_, err := runTool(ctx, "pdftoppm", nil,
			"-png", "-r", fmt.Sprint(r.DPI), "-f", "1", "-l", "1", "-singlefile", path, prefix)
		if err == nil {
			png, err = os.ReadFile(prefix + ".png")
			if err == nil && len(png) > 0 {
				return nil
			}
		}
		errs = append(errs, err)

		png, err = runTool(ctx, "magick", nil, "-density", fmt.Sprint(r.DPI), path+"[0]", "png:-")
		if err == nil && len(png) > 0 {
			return nil
		}
		errs = append(errs, err)
		return errors.Join(errs...)
	})
	if err != nil {
		return nil, "", fmt.Errorf("rasterization failed: %w", err)
	}
	return png, "image/png", nil
}
