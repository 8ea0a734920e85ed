package codeforces

import (
	"errors"
	"fmt"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
)

// ErrHandleNotFound matches (via errors.Is) a 400 response: the handle
// does not exist or has no data for the requested method.
var ErrHandleNotFound = errors.New("codeforces: handle not found")

// APIError describes a failed Codeforces call. StatusCode is 0 for
// transport failures (DNS, timeout, connection reset).
type APIError struct {
	Method     string
	Handle     string
	StatusCode int
	Comment    string

	// Message is the human-readable text surfaced to callers.
	Message string

	Err error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("codeforces %s(%s): %v", e.Method, e.Handle, e.Err)
	case e.Comment != "":
		return fmt.Sprintf("codeforces %s(%s): status %d: %s", e.Method, e.Handle, e.StatusCode, e.Comment)
	default:
		return fmt.Sprintf("codeforces %s(%s): status %d", e.Method, e.Handle, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Is reports ErrHandleNotFound for 400 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrHandleNotFound && e.StatusCode == 400
}

// IsHandleNotFound checks whether err came from a 400 response.
func IsHandleNotFound(err error) bool {
	return errors.Is(err, ErrHandleNotFound)
}

// domainError wraps an APIError into the single external-service error
// kind callers handle.
func domainError(op string, apiErr *APIError) error {
	return shared.WrapError("codeforces", op, shared.ErrExternalService, apiErr.Message, apiErr)
}
