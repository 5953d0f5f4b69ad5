// validate.go - Upload validation for lease documents and images

package processor

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Validation messages returned to clients verbatim
const (
	MsgNoFile               = "No file provided"
	MsgUnsupportedExtension = "Unsupported file extension"
	MsgFileTooLarge         = "File too large"
)

// ValidationError is an upload rejected before any processing
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UploadRules is an extension allow-list plus a size ceiling
type UploadRules struct {
	Extensions map[string]bool
	MaxBytes   int64
}

var imageExtensions = []string{"png", "jpg", "jpeg", "webp", "heic", "heif"}

// ImageRules accepts photos of lease pages
func ImageRules(maxBytes int64) UploadRules {
	return UploadRules{Extensions: extSet(imageExtensions...), MaxBytes: maxBytes}
}

// DocumentRules accepts PDFs, plain text and images
func DocumentRules(maxBytes int64) UploadRules {
	return UploadRules{Extensions: extSet(append([]string{"pdf", "txt"}, imageExtensions...)...), MaxBytes: maxBytes}
}

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

// ValidateUpload checks name and size and returns the sanitized file name
func ValidateUpload(filename string, size int64, rules UploadRules) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", &ValidationError{Message: MsgNoFile}
	}

	safe := SecureFilename(filename)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(safe)), ".")
	if ext == "" || !rules.Extensions[ext] {
		return "", &ValidationError{Message: MsgUnsupportedExtension}
	}
	if rules.MaxBytes > 0 && size > rules.MaxBytes {
		return "", &ValidationError{Message: MsgFileTooLarge}
	}
	return safe, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client-supplied name to a safe base name
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	return name
}

// MIMEForExtension maps an accepted extension to its media type
func MIMEForExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
