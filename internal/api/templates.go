// templates.go - Compliance template management for business tiers

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/bosocmputer/lease_analyzer/internal/processor"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/gin-gonic/gin"
)

// templateRules accepts text and PDF checklists only
func templateRules(maxBytes int64) processor.UploadRules {
	return processor.UploadRules{
		Extensions: map[string]bool{"txt": true, "pdf": true},
		MaxBytes:   maxBytes,
	}
}

// requireTemplateTier lets commercial and pro accounts through
func (h *Handler) requireTemplateTier(c *gin.Context) bool {
	profile, err := h.Profiles.GetOrCreate(c.Request.Context(), h.userID(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load profile", "error", err)
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "Service temporarily unavailable. Please try again later."))
		return false
	}
	switch profile.SubscriptionTier {
	case entitlement.TierCommercial, entitlement.TierPro:
		return true
	}
	body := errorBody(c, "Compliance templates are available on Commercial and Pro plans")
	body["upgradeRequired"] = true
	c.JSON(http.StatusForbidden, body)
	return false
}

func (h *Handler) GetTemplateHandler(c *gin.Context) {
	if h.Templates == nil {
		unavailable(c, "compliance templates")
		return
	}
	if !h.requireTemplateTier(c) {
		return
	}
	tpl, err := h.Templates.Get(c.Request.Context(), h.userID(c))
	if err == nil && tpl == nil {
		err = storage.ErrNotFound
	}
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// UploadTemplateHandler stores templateFile as the caller's template,
// replacing any previous one
func (h *Handler) UploadTemplateHandler(c *gin.Context) {
	if h.Templates == nil {
		unavailable(c, "compliance templates")
		return
	}
	if !h.requireTemplateTier(c) {
		return
	}

	up, err := h.readUpload(c, "templateFile", templateRules(h.MaxUploadBytes))
	if err != nil {
		writeUploadError(c, err)
		return
	}

	content, err := h.templateText(c, up)
	if err != nil {
		writeAnalyzeError(c, err)
		return
	}
	if strings.TrimSpace(content) == "" {
		c.JSON(http.StatusUnprocessableEntity, errorBody(c, "Template contains no readable text"))
		return
	}

	tpl := &storage.ComplianceTemplate{
		UserID:     h.userID(c),
		FileName:   up.name,
		Content:    content,
		UploadedAt: time.Now().UTC(),
	}
	if err := h.Templates.Put(c.Request.Context(), tpl); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fileName": tpl.FileName, "chars": len(content)})
}

func (h *Handler) DeleteTemplateHandler(c *gin.Context) {
	if h.Templates == nil {
		unavailable(c, "compliance templates")
		return
	}
	if !h.requireTemplateTier(c) {
		return
	}
	if err := h.Templates.Delete(c.Request.Context(), h.userID(c)); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// templateText pulls the text out of an uploaded template. Scanned PDFs
// that only yield an image are rejected.
func (h *Handler) templateText(c *gin.Context, up *upload) (string, error) {
	if up.mime == "text/plain" || h.Extractor == nil {
		return string(up.data), nil
	}
	payload, err := h.Extractor.Extract(c.Request.Context(), up.data, up.mime)
	if err != nil {
		return "", err
	}
	if payload.Kind != processor.KindText {
		return "", errors.Join(processor.ErrUnreadableDocument, errors.New("template has no text layer"))
	}
	return payload.Text, nil
}
