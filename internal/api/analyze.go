// analyze.go - Lease analysis endpoints

package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/ai"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/orchestrator"
	"github.com/bosocmputer/lease_analyzer/internal/processor"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form boundaries around the file part
const multipartOverhead = 1 << 20

// AnalyzeTextRequest is the JSON body of /api/analyze
type AnalyzeTextRequest struct {
	Text string `json:"text"`
}

// AnalyzeHandler accepts either a JSON {text} body or a multipart leaseFile
func (h *Handler) AnalyzeHandler(c *gin.Context) {
	var req orchestrator.Request

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		upload, err := h.readUpload(c, "leaseFile", processor.DocumentRules(h.MaxUploadBytes))
		if err != nil {
			writeUploadError(c, err)
			return
		}
		req = orchestrator.Request{Document: upload.data, MIMEType: upload.mime, FileName: upload.name}
	} else {
		var body AnalyzeTextRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "Invalid request format",
				"details":  err.Error(),
				"expected": "JSON with text, or multipart form with leaseFile",
			})
			return
		}
		if strings.TrimSpace(body.Text) == "" {
			c.JSON(http.StatusBadRequest, errorBody(c, "No lease text provided"))
			return
		}
		req = orchestrator.Request{Text: body.Text}
	}

	h.runAnalysis(c, req)
}

// AnalyzeImageHandler accepts a single photographed lease page as imageFile
func (h *Handler) AnalyzeImageHandler(c *gin.Context) {
	upload, err := h.readUpload(c, "imageFile", processor.ImageRules(h.MaxImageBytes))
	if err != nil {
		writeUploadError(c, err)
		return
	}
	h.runAnalysis(c, orchestrator.Request{Document: upload.data, MIMEType: upload.mime, FileName: upload.name})
}

func (h *Handler) runAnalysis(c *gin.Context, req orchestrator.Request) {
	if h.Analyzer == nil {
		unavailable(c, "analysis")
		return
	}
	req.UserID = h.userID(c)

	out, err := h.Analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		writeAnalyzeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"analysis":   out.Analysis,
		"leaseId":    out.AnalysisID,
		"structured": out.Structured,
		"usage":      out.Usage,
		"method":     out.Method,
		"textHash":   out.TextHash,
		"clauses":    out.Clauses,
		"request_id": out.RequestID,
		"metadata": gin.H{
			"processed_at": time.Now().Format(time.RFC3339),
			"kind":         out.Kind,
			"engine":       out.Engine,
			"passes":       out.Passes,
			"summary":      out.Summary,
		},
	})
}

// writeAnalyzeError maps pipeline errors onto status codes. Provider
// details only go to the log.
func writeAnalyzeError(c *gin.Context, err error) {
	log := logging.L(c.Request.Context())

	var denied *orchestrator.DeniedError
	switch {
	case errors.As(err, &denied):
		status := http.StatusPaymentRequired
		if denied.Decision.Reason == entitlement.ReasonUnauthorized {
			status = http.StatusForbidden
		}
		body := errorBody(c, denied.Decision.Message)
		body["reason"] = denied.Decision.Reason
		body["upgradeRequired"] = denied.Decision.UpgradeRequired
		if denied.Decision.RetryAfter > 0 {
			secs := int(math.Ceil(denied.Decision.RetryAfter.Seconds()))
			body["retryAfter"] = secs
			c.Header("Retry-After", fmt.Sprint(secs))
		}
		c.JSON(status, body)

	case errors.Is(err, orchestrator.ErrEmptyRequest):
		c.JSON(http.StatusBadRequest, errorBody(c, "No document or text provided"))

	case errors.Is(err, processor.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, errorBody(c, "Unsupported document type"))

	case errors.Is(err, processor.ErrUnreadableDocument):
		c.JSON(http.StatusUnprocessableEntity, errorBody(c, "Could not read any text from the document. Please upload a clearer copy."))

	case errors.Is(err, orchestrator.ErrAnalysisUnavailable):
		log.Error("analysis failed", "error", err)
		body := ai.UserFriendlyError(err)
		body["request_id"] = logging.RequestID(c.Request.Context())
		c.JSON(http.StatusServiceUnavailable, body)

	case errors.Is(err, orchestrator.ErrEntitlementUnavailable):
		log.Error("entitlement check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "Service temporarily unavailable. Please try again later."))

	default:
		log.Error("analysis request failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(c, "Internal server error"))
	}
}

type upload struct {
	name string
	mime string
	data []byte
}

// readUpload validates and reads one multipart file field
func (h *Handler) readUpload(c *gin.Context, field string, rules processor.UploadRules) (*upload, error) {
	if rules.MaxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, rules.MaxBytes+multipartOverhead)
	}

	fh, err := c.FormFile(field)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &processor.ValidationError{Message: processor.MsgFileTooLarge}
		}
		return nil, &processor.ValidationError{Message: processor.MsgNoFile}
	}

	name, err := processor.ValidateUpload(fh.Filename, fh.Size, rules)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &upload{name: name, mime: processor.MIMEForExtension(name), data: data}, nil
}

func writeUploadError(c *gin.Context, err error) {
	var verr *processor.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Message == processor.MsgFileTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, errorBody(c, verr.Message))
		return
	}
	logging.L(c.Request.Context()).Error("upload failed", "error", err)
	c.JSON(http.StatusInternalServerError, errorBody(c, "Failed to read upload"))
}
