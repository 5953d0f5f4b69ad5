package clauses

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, matches []Match, id string) Match {
	t.Helper()
	for _, m := range matches {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("clause %s not reported", id)
	return Match{}
}

func TestAnalyze_LateFeeDetected(t *testing.T) {
	results := Default().Analyze("Tenant shall pay a late fee if rent is not received.")
	clause := find(t, results, "CLAUSE001")
	assert.True(t, clause.Matched)
	assert.Equal(t, "medium", clause.Severity)
	assert.NotEmpty(t, clause.Remedies)
}

func TestAnalyze_MissingClause(t *testing.T) {
	results := Default().Analyze("This document has no relevant clauses.")
	assert.False(t, find(t, results, "CLAUSE001").Matched)
	assert.Len(t, results, Default().Len())
}

func TestAnalyze_CaseInsensitive(t *testing.T) {
	results := Default().Analyze("A NON-REFUNDABLE DEPOSIT of $500 is required.")
	assert.True(t, find(t, results, "CLAUSE003").Matched)
}

func TestParse_Defaults(t *testing.T) {
	lib, err := Parse([]byte("clauses:\n  - id: X1\n    pattern: 'pets?'\n"))
	require.NoError(t, err)
	m := lib.Analyze("No PETS allowed")
	require.Len(t, m, 1)
	assert.True(t, m[0].Matched)
	assert.Equal(t, "low", m[0].Severity)
	assert.Equal(t, []string{}, m[0].Remedies)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("clauses:\n  - id: X1\n    pattern: '('\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("clauses:\n  - pattern: 'x'\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("clauses:\n  - id: A\n    pattern: a\n  - id: A\n    pattern: b\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("clauses: [unterminated"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), lib.Len())

	path := filepath.Join(t.TempDir(), "lib.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clauses:\n  - id: ONLY\n    pattern: rent\n"), 0o600))
	lib, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTextHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", TextHash(""))
	assert.Len(t, TextHash("lease"), 64)
}
