// tools.go - Helpers for the optional poppler, ImageMagick and tesseract binaries

package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrToolUnavailable means a required external binary is not installed
var ErrToolUnavailable = errors.New("processor: external tool not available")

// lookPath is swapped in tests
var lookPath = exec.LookPath

func toolAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// runTool runs name with args and returns stdout
func runTool(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error) {
	if !toolAvailable(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrToolUnavailable)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// withTempFile writes data into a fresh temp dir and calls fn with the file path
func withTempFile(data []byte, name string, fn func(dir, path string) error) error {
	dir, err := os.MkdirTemp("", "lease-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	return fn(dir, path)
}
