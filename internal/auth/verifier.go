package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var ErrInvalidToken = errors.New("auth: invalid token")

// TokenVerifier turns a bearer token into verified claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Verifier validates RS256 ID tokens (Firebase or any OIDC issuer) against a JWKS endpoint
type Verifier struct {
	issuer   string
	audience string
	keyfunc  jwt.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier builds a verifier that refreshes signing keys from jwksURL.
// An empty jwksURL uses the issuer's well-known location.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	return newVerifier(issuer, audience, keyProvider.Keyfunc), nil
}

func newVerifier(issuer, audience string, kf jwt.Keyfunc) *Verifier {
	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name}),
	)
	return &Verifier{issuer: issuer, audience: audience, keyfunc: kf, parser: parser}
}

// Verify parses and validates a JWT, returning extracted claims
func (v *Verifier) Verify(_ context.Context, tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Admin:     readBool(mapClaims, "admin"),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token missing sub", ErrInvalidToken)
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func readBool(claims jwt.MapClaims, key string) bool {
	b, _ := claims[key].(bool)
	return b
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
