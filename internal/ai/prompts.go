// prompts.go - Prompt templates for lease analysis, repair and OCR
package ai

import (
	"fmt"

	"github.com/bosocmputer/lease_analyzer/internal/clauses"
)

// ============================================================================
// SECTION 1: ANALYSIS
// ============================================================================

// PromptOptions carries the optional sections of an analysis prompt
type PromptOptions struct {
	ComplianceTemplate string
	Clauses            []clauses.Match
}

// BuildLeaseAnalysisPrompt builds the structured-extraction prompt for lease text
func BuildLeaseAnalysisPrompt(leaseText string, opts PromptOptions) string {
	return fmt.Sprintf(`You are an experienced tenant-side lease reviewer.
Analyze the residential or commercial lease below and report on it from the
tenant's point of view.
%s%s
%s

%s

LEASE TEXT:
"""
%s
"""`,
		FormatComplianceTemplate(opts.ComplianceTemplate),
		FormatClauseFindings(opts.Clauses),
		GetOutputFormatJSON(),
		GetValidationRequirements(),
		leaseText,
	)
}

// BuildImageAnalysisPrompt is BuildLeaseAnalysisPrompt for a page image
func BuildImageAnalysisPrompt(opts PromptOptions) string {
	return fmt.Sprintf(`You are an experienced tenant-side lease reviewer.
The attached image is a page of a lease agreement. Read it carefully and
report on it from the tenant's point of view. If parts are illegible, say so
in the summary instead of guessing.
%s
%s

%s`,
		FormatComplianceTemplate(opts.ComplianceTemplate),
		GetOutputFormatJSON(),
		GetValidationRequirements(),
	)
}

// ============================================================================
// SECTION 2: REPAIR
// ============================================================================

// BuildRepairPrompt asks the model to fix its own malformed output. Missing
// fields must be filled with the NotFound sentinel rather than omitted.
func BuildRepairPrompt(schemaHint, malformed string) string {
	return fmt.Sprintf(`The text between the markers was meant to be a single JSON object but it
does not parse. Return a corrected JSON object that strictly matches the
format below.

- Keep every value that is present and readable.
- Fill any missing or unreadable field with the string "%s". Never omit a key.
- Return ONLY the JSON object.

%s

<<<MALFORMED
%s
MALFORMED>>>`, NotFound, schemaHint, malformed)
}

// ============================================================================
// SECTION 3: OCR
// ============================================================================

// GetPureOCRPrompt returns the transcription-only prompt used for OCR
func GetPureOCRPrompt() string {
	return `Transcribe all visible text in this document exactly as written.
Read from top to bottom, left to right, and keep line breaks.
Do not summarise, translate, analyse or add commentary. Return plain text only.`
}
