package auth

import (
	"net/http"
	"strings"

	"github.com/bosocmputer/lease_analyzer/internal/logging"
	"github.com/gin-gonic/gin"
)

// Middleware enforces bearer token auth and injects claims into the request context
func Middleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logging.L(ctx)

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Info("auth failure: missing Authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Info("auth failure: malformed Authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			log.Info("auth failure: token invalid", "path", c.Request.URL.Path, "error", err)
			respondUnauthorized(c, "invalid token")
			return
		}

		c.Set("user_id", claims.Subject)
		c.Request = c.Request.WithContext(WithClaims(ctx, claims))
		c.Next()
	}
}

// RequireAdmin allows callers listed in adminIDs or carrying an admin claim.
// It must run after Middleware.
func RequireAdmin(adminIDs []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok {
			respondUnauthorized(c, "missing auth context")
			return
		}
		if _, listed := admins[claims.Subject]; !listed && !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
