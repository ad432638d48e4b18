// Package errtag classifies failures across the core into the taxonomy used
// by callers to decide whether to retry, degrade, or surface a terminal
// error to the client.
package errtag

import "errors"

var (
	// ErrInvalidInput marks client-supplied data that can never succeed:
	// empty messages, oversize attachments, malformed tool arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable marks an external collaborator (canvas CRUD, model
	// provider, embedding provider, vector store) failing or erroring.
	ErrUnavailable = errors.New("external service unavailable")

	// ErrRateLimited marks a rate-gate or timeout budget exhausted.
	ErrRateLimited = errors.New("rate limited or timed out")

	// ErrIntegrity marks a knowledge-graph invariant violation (missing
	// edge endpoint, duplicate assignment) that is logged and no-op'd
	// rather than propagated.
	ErrIntegrity = errors.New("data integrity violation")

	// ErrCancelled marks cooperative cancellation of a long-running
	// operation.
	ErrCancelled = errors.New("operation cancelled")
)

// Tagged wraps an underlying error with one of the sentinels above so
// callers can both errors.Is against the category and retrieve the
// original cause with errors.Unwrap.
type Tagged struct {
	Kind  error
	Cause error
}

func (t *Tagged) Error() string {
	if t.Cause == nil {
		return t.Kind.Error()
	}
	return t.Kind.Error() + ": " + t.Cause.Error()
}

func (t *Tagged) Unwrap() error { return t.Cause }

func (t *Tagged) Is(target error) bool { return t.Kind == target }

// Wrap tags cause with kind, one of the sentinels declared in this package.
func Wrap(kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Tagged{Kind: kind, Cause: cause}
}
