package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrNoPendingRequest   = errors.New("no pending request")
)

// ErrorKind classifies a terminal generation failure. Every kind except a
// ledger write warning is surfaced to the caller; ledger write problems are
// logged and never change the outcome.
type ErrorKind string

const (
	ErrInvalidRequest        ErrorKind = "invalid_request"
	ErrKindInsufficient      ErrorKind = "insufficient_credit"
	ErrSubmissionFailed      ErrorKind = "submission_failed"
	ErrJobFailed             ErrorKind = "job_failed"
	ErrJobTimedOut           ErrorKind = "job_timed_out"
	ErrMaterializationFailed ErrorKind = "materialization_failed"
)

// GenerationError is the typed failure returned by the orchestrator. For
// every kind except ErrInvalidRequest and ErrKindInsufficient the credit
// reservation has already been refunded by the time the caller sees it.
type GenerationError struct {
	Kind      ErrorKind
	Reason    string
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps a failure with its taxonomy kind.
func NewGenerationError(kind ErrorKind, reason string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Reason: reason, Err: err}
}

// GenerationErrorKind extracts the kind from err, or "" when err is not a
// GenerationError.
func GenerationErrorKind(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}
