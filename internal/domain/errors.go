package domain

import "errors"

// Error kinds surfaced to callers. Package-specific errors wrap these so the
// request layer can map them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
)
