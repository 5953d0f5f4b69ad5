package orchestrator

import (
	"errors"
	"fmt"

	"github.com/bosocmputer/lease_analyzer/internal/entitlement"
)

var (
	ErrEmptyRequest           = errors.New("no document or text provided")
	ErrEntitlementUnavailable = errors.New("entitlement store unavailable")
	ErrAnalysisUnavailable    = errors.New("analysis provider unavailable")
)

// DeniedError is returned when authorization refuses the request
type DeniedError struct {
	Tier     entitlement.Tier
	Decision entitlement.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("analysis denied (%s): %s", e.Decision.Reason, e.Decision.Message)
}
