package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpload_Images(t *testing.T) {
	rules := ImageRules(5 * 1024 * 1024)

	name, err := ValidateUpload("../../etc/My Lease.JPG", 1024, rules)
	require.NoError(t, err)
	assert.Equal(t, "My_Lease.JPG", name)

	_, err = ValidateUpload("", 10, rules)
	assert.EqualError(t, err, MsgNoFile)

	_, err = ValidateUpload("test.txt", 10, rules)
	assert.EqualError(t, err, MsgUnsupportedExtension)

	_, err = ValidateUpload("noext", 10, rules)
	assert.EqualError(t, err, MsgUnsupportedExtension)

	_, err = ValidateUpload("test.jpg", 6*1024*1024, rules)
	assert.EqualError(t, err, MsgFileTooLarge)
}

func TestValidateUpload_Documents(t *testing.T) {
	rules := DocumentRules(10 * 1024 * 1024)
	for _, n := range []string{"lease.pdf", "lease.txt", "scan.heic", "photo.webp"} {
		_, err := ValidateUpload(n, 100, rules)
		assert.NoError(t, err, n)
	}
	_, err := ValidateUpload("lease.docx", 100, rules)
	assert.EqualError(t, err, MsgUnsupportedExtension)
}

func TestSecureFilename(t *testing.T) {
	assert.Equal(t, "lease.pdf", SecureFilename(`C:\Users\me\lease.pdf`))
	assert.Equal(t, "a_b.pdf", SecureFilename("a b.pdf"))
	assert.Equal(t, "passwd", SecureFilename("../../etc/passwd"))
}

func TestMIMEForExtension(t *testing.T) {
	assert.Equal(t, "application/pdf", MIMEForExtension("x.PDF"))
	assert.Equal(t, "image/jpeg", MIMEForExtension("x.jpeg"))
	assert.Equal(t, "application/octet-stream", MIMEForExtension("x.bin"))
}
