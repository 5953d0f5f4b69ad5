// Package auth verifies identity-provider ID tokens and carries the caller's
// claims through the request context.
package auth

import (
	"context"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// Claims contains the verified token details the service uses
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Admin     bool
	Raw       map[string]any
}

// WithClaims stores auth claims in a context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// UserID returns the verified subject, or "" when the request is anonymous
func UserID(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
