// prompt_formatting.go - Helper functions for optional prompt sections
package ai

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/lease_analyzer/internal/clauses"
)

// maxTemplateChars bounds the compliance template copied into a prompt
const maxTemplateChars = 8000

// FormatComplianceTemplate formats a user's compliance template section
func FormatComplianceTemplate(template string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	if len(template) > maxTemplateChars {
		template = template[:maxTemplateChars]
	}
	return fmt.Sprintf(`
COMPLIANCE TEMPLATE:
The user requires leases to follow the standard below. Add a risk entry for
every requirement the lease misses or contradicts.
---
%s
---
`, template)
}

// FormatClauseFindings lists rule-based clause matches so the model can confirm them
func FormatClauseFindings(matches []clauses.Match) string {
	var b strings.Builder
	for _, m := range matches {
		if !m.Matched {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("\nPRE-SCREENED CLAUSES (keyword matches, verify against the text):\n")
		}
		fmt.Fprintf(&b, "- %s (severity: %s)\n", m.ID, m.Severity)
	}
	return b.String()
}
