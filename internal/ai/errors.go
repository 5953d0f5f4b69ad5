// errors.go - Provider error categorisation and user-facing error bodies

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// Error categories
const (
	CategoryInvalidCredential = "invalid_credential"
	CategoryBadRequest        = "bad_request"
	CategoryForbidden         = "forbidden"
	CategoryNotFound          = "not_found"
	CategoryPayloadTooLarge   = "payload_too_large"
	CategoryRateLimit         = "rate_limit"
	CategoryQuotaExceeded     = "quota_exceeded"
	CategoryServerError       = "server_error"
	CategoryTimeout           = "timeout"
	CategoryCanceled          = "canceled"
	CategoryNetwork           = "network_error"
	CategoryEmptyResponse     = "empty_response"
	CategoryUnknown           = "unknown"
)

// ProviderError is a categorised LLM provider failure
type ProviderError struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *ProviderError) Unwrap() error { return e.OriginalError }

// InvalidCredential reports whether switching to another key could help
func (e *ProviderError) InvalidCredential() bool {
	return e.Category == CategoryInvalidCredential
}

// httpCoder matches provider errors that expose an HTTP status (googleapis apierror)
type httpCoder interface {
	HTTPCode() int
}

// Categorize maps any provider error into a ProviderError
func Categorize(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	out := &ProviderError{
		OriginalError: err,
		Category:      CategoryUnknown,
		Message:       err.Error(),
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Category = CategoryTimeout
		out.Message = "Request timeout - processing took too long"
		out.Retryable = true
		return out
	case errors.Is(err, context.Canceled):
		out.Category = CategoryCanceled
		out.Message = "Request was canceled"
		return out
	}

	status := 0
	var apiErr *googleapi.Error
	var coder httpCoder
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &coder) && coder.HTTPCode() > 0:
		status = coder.HTTPCode()
	}
	out.StatusCode = status

	msg := strings.ToLower(err.Error())
	if mentionsBadKey(msg) && (status == 0 || status == 400 || status == 401 || status == 403) {
		out.Category = CategoryInvalidCredential
		out.Message = "Invalid API key or authentication failed"
		return out
	}

	switch status {
	case 401:
		out.Category = CategoryInvalidCredential
		out.Message = "Invalid API key or authentication failed"
	case 400:
		out.Category = CategoryBadRequest
		out.Message = "Invalid request format or parameters"
	case 403:
		out.Category = CategoryForbidden
		out.Message = "Credential lacks required permissions"
	case 404:
		out.Category = CategoryNotFound
		out.Message = "Model not found or invalid endpoint"
	case 413:
		out.Category = CategoryPayloadTooLarge
		out.Message = "Request size exceeds limit"
	case 429:
		out.Category = CategoryRateLimit
		out.Message = "Rate limit exceeded - too many requests"
		out.Retryable = true
		if strings.Contains(msg, "quota") {
			out.Category = CategoryQuotaExceeded
			out.Message = "API quota exceeded"
			out.Retryable = false
		}
	case 500, 502, 503, 504:
		out.Category = CategoryServerError
		out.Message = fmt.Sprintf("Provider server error (%d)", status)
		out.Retryable = true
	case 0:
		categorizeByMessage(out, msg)
	default:
		out.Retryable = status >= 500
	}
	return out
}

func mentionsBadKey(msg string) bool {
	for _, s := range []string{"api key not valid", "api_key_invalid", "invalid api key", "api key expired", "unauthenticated"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func categorizeByMessage(out *ProviderError, msg string) {
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resourceexhausted"):
		out.Category = CategoryQuotaExceeded
		out.Message = "API quota exceeded"
	case strings.Contains(msg, "permission"):
		out.Category = CategoryForbidden
		out.Message = "Credential lacks required permissions"
	case strings.Contains(msg, "invalid_argument") || strings.Contains(msg, "invalid argument"):
		out.Category = CategoryBadRequest
		out.Message = "Invalid request format or parameters"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		out.Category = CategoryTimeout
		out.Message = "Request timeout"
		out.Retryable = true
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		out.Category = CategoryNetwork
		out.Message = "Network connection error"
		out.Retryable = true
	}
}

// UserFriendlyError builds a response body that hides provider details
func UserFriendlyError(err error) map[string]interface{} {
	pe := Categorize(err)
	body := map[string]interface{}{
		"error":    "AI analysis is temporarily unavailable. Please try again later.",
		"category": CategoryUnknown,
	}
	if pe == nil {
		return body
	}
	body["category"] = pe.Category

	switch pe.Category {
	case CategoryRateLimit, CategoryQuotaExceeded:
		body["suggestion"] = "The service is busy. Please wait a moment and try again."
		body["retry_after"] = "30-60 seconds"
	case CategoryPayloadTooLarge:
		body["suggestion"] = "The document is too large. Please upload a smaller file."
	case CategoryTimeout, CategoryServerError, CategoryNetwork:
		body["suggestion"] = "Please try again in a few minutes."
		body["retry_recommended"] = true
	default:
		body["suggestion"] = "Please try again later or contact support."
	}
	return body
}
