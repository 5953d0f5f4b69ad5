// Package billing verifies payment-provider webhooks and applies the
// subscription upgrades they carry exactly once.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature over the raw payload.
// An empty secret rejects everything.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
