package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Sentinel error kinds for the classify/extract calls. Each maps to a
// different user-facing remedy (wait-and-retry vs reconfigure vs
// retake), so callers match on them with errors.Is.
var (
	ErrTimeout            = errors.New("vision request timed out")
	ErrRateLimited        = errors.New("vision service rate limited")
	ErrAuthConfig         = errors.New("vision API key missing or invalid")
	ErrBadRequest         = errors.New("vision service rejected the request")
	ErrNetworkUnreachable = errors.New("vision service unreachable")
)

// UnparseableError means the model response contained no recoverable
// JSON object. Raw is retained for diagnostics, never discarded.
type UnparseableError struct {
	Raw string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("no JSON object found in model response: %q", truncate(e.Raw, 200))
}

// ValidationError means the recovered JSON was missing a required
// field for the expected shape.
type ValidationError struct {
	Field string
	Raw   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model response missing required field %q", e.Field)
}

// mapAPIError folds a backend transport failure into the sentinel
// taxonomy, preserving the original message.
func mapAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return mapStatusCode(gerr.Code, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
}

func mapStatusCode(code int, err error) error {
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrAuthConfig, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
