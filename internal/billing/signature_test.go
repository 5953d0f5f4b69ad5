package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := Sign("s3cret", body)

	assert.NoError(t, VerifySignature("s3cret", body, sig))
	assert.NoError(t, VerifySignature("s3cret", body, "sha256="+sig))

	assert.ErrorIs(t, VerifySignature("other", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", []byte(`{"id":"evt_2"}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", body, "zz-not-hex"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("s3cret", body, ""), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("", body, Sign("", body)), ErrInvalidSignature)
}
