package incidents

import (
	"fmt"

	"github.com/bissquit/riskengine/internal/domain"
)

// Lifecycle errors. All of them are validation errors.
var (
	ErrInvalidSeverity  = fmt.Errorf("%w: invalid severity", domain.ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: invalid status", domain.ErrValidation)
	ErrResolveRequired  = fmt.Errorf("%w: use resolve to close an incident", domain.ErrValidation)
	ErrIncidentResolved = fmt.Errorf("%w: incident already resolved", domain.ErrValidation)
	ErrInvalidListLimit = fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, MaxListLimit)
)
