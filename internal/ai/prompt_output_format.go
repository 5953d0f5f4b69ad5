// prompt_output_format.go - JSON output contract for lease analysis
//
// The textual hint is embedded in prompts (including the repair prompt);
// LeaseSchema is the same contract as a provider-side response schema.

package ai

import "github.com/google/generative-ai-go/genai"

// NotFound is the sentinel models must use for fields absent from the document
const NotFound = "Not Found"

// GetOutputFormatJSON returns the JSON shape the model must return
func GetOutputFormatJSON() string {
	return `OUTPUT FORMAT (JSON):

{
  "summary": "[2-4 sentence plain-language overview of the lease]",
  "score": "[integer 0-100, tenant friendliness; 100 = very favourable to the tenant]",
  "risks": ["[one concrete risk per entry, quoting the clause when possible]"],
  "clause_summaries": {
    "[clause name, e.g. Rent, Security Deposit, Termination]": "[one sentence summary]"
  },
  "extracted_data": {
    "landlord_name": "[name or \"Not Found\"]",
    "tenant_name": "[name or \"Not Found\"]",
    "property_address": "[address or \"Not Found\"]",
    "monthly_rent": "[amount with currency or \"Not Found\"]",
    "security_deposit": "[amount with currency or \"Not Found\"]",
    "lease_start_date": "[YYYY-MM-DD or \"Not Found\"]",
    "lease_end_date": "[YYYY-MM-DD or \"Not Found\"]",
    "renewal_terms": "[text or \"Not Found\"]",
    "late_fee": "[text or \"Not Found\"]"
  }
}`
}

// LeaseSchema mirrors GetOutputFormatJSON for JSON-mode generation
func LeaseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": str("Plain-language overview of the lease"),
			"score": {
				Type:        genai.TypeInteger,
				Description: "Tenant friendliness from 0 to 100",
			},
			"risks": {
				Type:  genai.TypeArray,
				Items: str("One concrete risk"),
			},
			"clause_summaries": {
				Type:        genai.TypeObject,
				Description: "Clause name to one-sentence summary",
				Properties: map[string]*genai.Schema{
					"Rent":             str("Rent clause summary"),
					"Security Deposit": str("Deposit clause summary"),
					"Termination":      str("Termination clause summary"),
					"Maintenance":      str("Maintenance and repairs summary"),
				},
			},
			"extracted_data": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"landlord_name":    str("Landlord or \"Not Found\""),
					"tenant_name":      str("Tenant or \"Not Found\""),
					"property_address": str("Premises address or \"Not Found\""),
					"monthly_rent":     str("Rent amount or \"Not Found\""),
					"security_deposit": str("Deposit amount or \"Not Found\""),
					"lease_start_date": str("YYYY-MM-DD or \"Not Found\""),
					"lease_end_date":   str("YYYY-MM-DD or \"Not Found\""),
					"renewal_terms":    str("Renewal terms or \"Not Found\""),
					"late_fee":         str("Late fee terms or \"Not Found\""),
				},
			},
		},
		Required: []string{"summary", "score", "risks", "clause_summaries", "extracted_data"},
	}
}

// GetValidationRequirements lists the rules appended to every analysis prompt
func GetValidationRequirements() string {
	return `RULES:
- Return ONLY the JSON object. No markdown fences, no commentary.
- Every key above must be present. Use "Not Found" for values the document does not state.
- Do not invent amounts, dates or names.
- "score" must be an integer.`
}
