package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://securetoken.google.com/lease-test"
	testAudience = "lease-test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(testIssuer, testAudience, server.URL)
	require.NoError(t, err)
	return verifier, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "user-123",
		"exp": now.Add(10 * time.Minute).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, base)
	token.Header["kid"] = "test-key"
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func protectedRouter(v TokenVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Middleware(v))
	handlers := append(extra, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c.Request.Context()))
	})
	router.GET("/protected", handlers...)
	return router
}

func do(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestMiddleware_RejectsMissingAndMalformed(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	router := protectedRouter(verifier)

	assert.Equal(t, http.StatusUnauthorized, do(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, "Bearer not-a-jwt").Code)
}

func TestMiddleware_RejectsForeignKey(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	badKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	resp := do(protectedRouter(verifier), "Bearer "+signToken(t, badKey, nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMiddleware_RejectsWrongAudienceAndExpired(t *testing.T) {
	verifier, key := newTestVerifier(t)
	router := protectedRouter(verifier)

	resp := do(router, "Bearer "+signToken(t, key, jwt.MapClaims{"aud": "someone-else"}))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = do(router, "Bearer "+signToken(t, key, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMiddleware_ValidTokenSetsUser(t *testing.T) {
	verifier, key := newTestVerifier(t)
	resp := do(protectedRouter(verifier), "Bearer "+signToken(t, key, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "user-123", resp.Body.String())
}

func TestMiddleware_NilVerifier(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, do(protectedRouter(nil), "Bearer x").Code)
}

func TestRequireAdmin(t *testing.T) {
	verifier, key := newTestVerifier(t)

	listed := protectedRouter(verifier, RequireAdmin([]string{"user-123"}))
	assert.Equal(t, http.StatusOK, do(listed, "Bearer "+signToken(t, key, nil)).Code)

	unlisted := protectedRouter(verifier, RequireAdmin([]string{"someone"}))
	assert.Equal(t, http.StatusForbidden, do(unlisted, "Bearer "+signToken(t, key, nil)).Code)

	claim := signToken(t, key, jwt.MapClaims{"admin": true})
	assert.Equal(t, http.StatusOK, do(unlisted, "Bearer "+claim).Code)
}

func TestVerify_ExtractsClaims(t *testing.T) {
	verifier, key := newTestVerifier(t)
	claims, err := verifier.Verify(context.Background(), signToken(t, key, jwt.MapClaims{"email": "a@example.com"}))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, []string{testAudience}, claims.Audience)
	assert.False(t, claims.ExpiresAt.IsZero())

	_, err = verifier.Verify(context.Background(), signToken(t, key, jwt.MapClaims{"sub": ""}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, h := range []string{"Bearer", "Token abc", "", "Bearer   "} {
		_, ok := extractBearerToken(h)
		assert.False(t, ok, h)
	}
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	return jwksPayload{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
}
