package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bosocmputer/lease_analyzer/internal/ai"
	"github.com/bosocmputer/lease_analyzer/internal/auth"
	"github.com/bosocmputer/lease_analyzer/internal/billing"
	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
	"github.com/bosocmputer/lease_analyzer/internal/health"
	"github.com/bosocmputer/lease_analyzer/internal/orchestrator"
	"github.com/bosocmputer/lease_analyzer/internal/processor"
	"github.com/bosocmputer/lease_analyzer/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec_test"
	leaseText     = "This residential lease is made between the landlord and the tenant. Rent is due on the first day of each month."
)

// tokenVerifier accepts "token-<user>" and "admin-<user>"
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	switch {
	case strings.HasPrefix(token, "token-"):
		return &auth.Claims{Subject: strings.TrimPrefix(token, "token-")}, nil
	case strings.HasPrefix(token, "admin-"):
		return &auth.Claims{Subject: strings.TrimPrefix(token, "admin-"), Admin: true}, nil
	}
	return nil, auth.ErrInvalidToken
}

type stubLLM struct {
	text  string
	err   error
	calls int
}

func (s *stubLLM) GenerateStructured(context.Context, ai.StructuredRequest) (*ai.StructuredResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ai.StructuredResult{Text: s.text, Passes: 1, Valid: true}, nil
}

type testServer struct {
	router   *gin.Engine
	profiles *entitlement.MemoryStore
	analyses *storage.MemoryAnalysisStore
	llm      *stubLLM
	health   *health.Registry
}

func nowUTC() time.Time { return time.Now().UTC() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		profiles: entitlement.NewMemoryStore(),
		analyses: storage.NewMemoryAnalysisStore(),
		llm:      &stubLLM{text: `{"summary":"Standard residential lease"}`},
		health:   health.NewRegistry(),
	}
	extractor := processor.NewExtractor(40)
	templates := storage.NewTemplateCache(storage.NewMemoryTemplateStore(), 0)
	payments := storage.NewMemoryPaymentStore()

	h := &Handler{
		Analyzer:       orchestrator.NewService(ts.profiles, extractor, ts.llm, ts.analyses, orchestrator.WithTemplates(templates)),
		Extractor:      extractor,
		Profiles:       ts.profiles,
		Analyses:       ts.analyses,
		Templates:      templates,
		Payments:       payments,
		Billing:        billing.NewService(ts.profiles, payments),
		Health:         ts.health,
		MaxUploadBytes: 1 << 20,
		MaxImageBytes:  1 << 10,
		WebhookSecret:  webhookSecret,
		VariantTiers:   map[string]string{"42": "premium"},
	}
	ts.router = NewRouter(h, RouterConfig{Verifier: tokenVerifier{}, AdminIDs: []string{"ops"}, AllowedOrigins: "*"})
	return ts
}

func (ts *testServer) do(method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(path, token string, v any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(v)
	return ts.do(http.MethodPost, path, token, body, "application/json")
}

func multipartFile(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAnalyze_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/analyze", "", gin.H{"text": leaseText})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.postJSON("/api/analyze", "forged", gin.H{"text": leaseText})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, ts.llm.calls)
}

func TestAnalyze_FreeTierQuotaAndUpgradePrompt(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := ts.postJSON("/api/analyze", "token-alice", gin.H{"text": leaseText})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["structured"])
		assert.NotEmpty(t, body["leaseId"])
		assert.NotEmpty(t, body["textHash"])
		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	}

	w := ts.postJSON("/api/analyze", "token-alice", gin.H{"text": leaseText})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	body := decode(t, w)
	assert.Equal(t, "monthly", body["reason"])
	assert.Equal(t, true, body["upgradeRequired"])
	assert.NotZero(t, body["retryAfter"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 3, ts.llm.calls)
}

func TestAnalyze_CommercialWithoutAllowance(t *testing.T) {
	ts := newTestServer(t)
	p := entitlement.NewProfile("biz", nowUTC())
	p.SubscriptionTier = entitlement.TierCommercial
	ts.profiles.Put(p)

	w := ts.postJSON("/api/analyze", "token-biz", gin.H{"text": leaseText})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, false, decode(t, w)["upgradeRequired"])
}

func TestAnalyze_UnknownTierIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	p := entitlement.NewProfile("odd", nowUTC())
	p.SubscriptionTier = entitlement.Tier("platinum")
	ts.profiles.Put(p)

	w := ts.postJSON("/api/analyze", "token-odd", gin.H{"text": leaseText})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["reason"])
}

func TestAnalyze_BadInput(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/analyze", "token-alice", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/analyze", "token-alice", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := multipartFile(t, "leaseFile", "lease.docx", []byte("PK"))
	w = ts.do(http.MethodPost, "/api/analyze", "token-alice", body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, processor.MsgUnsupportedExtension, decode(t, w)["error"])

	body, ct = multipartFile(t, "wrongField", "lease.txt", []byte(leaseText))
	w = ts.do(http.MethodPost, "/api/analyze", "token-alice", body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, processor.MsgNoFile, decode(t, w)["error"])
}

func TestAnalyze_MultipartTextFile(t *testing.T) {
	ts := newTestServer(t)

	body, ct := multipartFile(t, "leaseFile", "../../my lease.txt", []byte(leaseText))
	w := ts.do(http.MethodPost, "/api/analyze", "token-alice", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, processor.MethodPlainText, out["method"])

	rec, err := ts.analyses.Get(context.Background(), out["leaseId"].(string), "alice")
	require.NoError(t, err)
	assert.Equal(t, "my_lease.txt", rec.FileName)
}

func TestAnalyzeImage_TooLarge(t *testing.T) {
	ts := newTestServer(t)

	body, ct := multipartFile(t, "imageFile", "page.png", bytes.Repeat([]byte{0}, 2048))
	w := ts.do(http.MethodPost, "/api/analyze-image", "token-alice", body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, processor.MsgFileTooLarge, decode(t, w)["error"])
}

func TestAnalyze_ProviderFailureHidesDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.err = errors.New("googleapi: Error 500: backend exploded at 10.0.0.7")

	w := ts.postJSON("/api/analyze", "token-alice", gin.H{"text": leaseText})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")
	assert.NotEmpty(t, decode(t, w)["request_id"])

	p, err := ts.profiles.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, p.MonthlyUsageCount)
}

func TestAnalyses_OwnershipScoped(t *testing.T) {
	ts := newTestServer(t)
	w := ts.postJSON("/api/analyze", "token-alice", gin.H{"text": leaseText})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["leaseId"].(string)

	w = ts.do(http.MethodGet, "/api/analyses/"+id, "token-alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/analyses/"+id, "token-mallory", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodDelete, "/api/analyses/"+id, "token-mallory", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/analyses", "token-alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(http.MethodGet, "/api/analyses?limit=zero", "token-alice", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, "/api/analyses/"+id, "token-alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/analyses/"+id, "token-alice", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsage_ReportsCounters(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.postJSON("/api/analyze", "token-alice", gin.H{"text": leaseText}).Code)

	w := ts.do(http.MethodGet, "/api/usage", "token-alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	usage := decode(t, w)["usage"].(map[string]interface{})
	assert.Equal(t, "free", usage["tier"])
	assert.EqualValues(t, 1, usage["monthlyUsed"])
	assert.EqualValues(t, 2, usage["remaining"])
}

func TestComplianceTemplate_Lifecycle(t *testing.T) {
	ts := newTestServer(t)

	body, ct := multipartFile(t, "templateFile", "policy.txt", []byte("Security deposit must not exceed two months of rent."))
	w := ts.do(http.MethodPost, "/api/compliance/template", "token-alice", body, ct)
	require.Equal(t, http.StatusForbidden, w.Code, "free tier cannot upload templates")
	assert.Equal(t, true, decode(t, w)["upgradeRequired"])

	p := entitlement.NewProfile("biz", nowUTC())
	p.SubscriptionTier = entitlement.TierPro
	ts.profiles.Put(p)

	w = ts.do(http.MethodGet, "/api/compliance/template", "token-biz", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/compliance/template", "token-biz", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/compliance/template", "token-biz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["content"], "two months")

	w = ts.do(http.MethodDelete, "/api/compliance/template", "token-biz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodDelete, "/api/compliance/template", "token-biz", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminQuota(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"maxAllowedActions": 25}`)

	w := ts.do(http.MethodPut, "/api/admin/users/biz/quota", "token-alice", body, "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPut, "/api/admin/users/biz/quota", "token-ops", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p, err := ts.profiles.GetOrCreate(context.Background(), "biz")
	require.NoError(t, err)
	assert.Equal(t, 25, p.MaxAllowedActions)

	w = ts.do(http.MethodPut, "/api/admin/users/biz/quota", "admin-someone", []byte(`{"maxAllowedActions": -1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPut, "/api/admin/users/biz/quota", "token-ops", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook_SignedAndIdempotent(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"id":"ord_1","data":{"attributes":{"user_id":"alice","variant_id":42,"total":999,"currency":"USD"}}}`)

	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
		req.Header.Set(HeaderSignature, sig)
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		return w
	}

	w := post("deadbeef")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid signature", decode(t, w)["error"])

	sig := billing.Sign(webhookSecret, payload)
	w = post(sig)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "processed", decode(t, w)["status"])

	w = post(sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["status"])

	p, err := ts.profiles.GetOrCreate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, p.SubscriptionTier)

	w = ts.do(http.MethodGet, "/api/payments/receipts", "token-alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["receipts"], 1)
}

func TestPaymentWebhook_UnknownVariant(t *testing.T) {
	ts := newTestServer(t)
	payload := []byte(`{"id":"ord_2","data":{"attributes":{"user_id":"alice","variant_id":"999"}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	req.Header.Set(HeaderSignature, billing.Sign(webhookSecret, payload))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeEndpoints_UnconfiguredAnswer503(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/payments/checkout", "token-alice", gin.H{"priceId": "price_1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.do(http.MethodPost, "/api/payments/stripe/webhook", "", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	ts.health.RegisterPing("mongodb", func(context.Context) error { return errors.New("no reachable servers") })
	w = ts.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodOptions, "/api/analyze", "", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
