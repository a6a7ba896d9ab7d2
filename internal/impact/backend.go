package impact

import (
	"context"
	"errors"
	"fmt"
)

// Prompt is a single request to a text-generation backend. Zero Temperature
// and MaxTokens leave the backend defaults in place.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// TextGenerator produces free-form text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// BackendErrorKind classifies why a backend call did not produce a result.
type BackendErrorKind string

// Backend error kinds.
const (
	KindTimeout     BackendErrorKind = "timeout"
	KindMalformed   BackendErrorKind = "malformed"
	KindTransport   BackendErrorKind = "transport"
	KindUnavailable BackendErrorKind = "unavailable"
	KindRateLimited BackendErrorKind = "rate_limited"
)

// ErrBackendNotConfigured is wrapped by unavailable backend errors.
var ErrBackendNotConfigured = errors.New("text generation backend not configured")

// BackendError is a failed backend call. It never leaves this package:
// every kind is collapsed to a deterministic fallback.
type BackendError struct {
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendError(kind BackendErrorKind, err error) *BackendError {
	return &BackendError{Kind: kind, Err: err}
}
