// Package errors provides the error taxonomy shared by crew components.
//
// Two families of errors live here:
//
// Stage errors describe why a quality gate stage, a local check, or a
// provider call could not produce a clean result. They carry a [Kind] that
// maps onto the failure taxonomy (infra-failure, timeout, config-error,
// non-json-response, provider-http-error, ...) and a remediation suggestion
// that is surfaced to the teammate alongside the failure.
//
// Input errors describe invalid calls into the coordinator: unknown
// resources, malformed input, and illegal status transitions.
//
// # Usage
//
//	err := errors.NewStageError(errors.KindInfraFailure, "tests", "cannot find module 'vitest'").
//		WithSuggestion("Run the package manager install step before re-running the suite")
//
//	if errors.KindOf(err) == errors.KindInfraFailure { ... }
//	if errors.IsRetryable(err) { ... }
//
//	var pe *errors.ProviderError
//	if errors.As(err, &pe) { log.Warn("provider failed", "status", pe.StatusCode) }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind classifies a failure.
type Kind string

const (
	KindUnknown           Kind = ""
	KindInfraFailure      Kind = "infra-failure"
	KindTimeout           Kind = "timeout"
	KindConfigError       Kind = "config-error"
	KindTestFailures      Kind = "test-failures"
	KindNoTests           Kind = "no-tests"
	KindCredentialMissing Kind = "credential-missing"
	KindNonJSONResponse   Kind = "non-json-response"
	KindProviderHTTP      Kind = "provider-http-error"
	KindConflict          Kind = "conflict"
	KindBudgetExhausted   Kind = "budget-exhausted"
	KindBackoff           Kind = "backoff"
	KindHardBlock         Kind = "hard-block"
	KindEmptyDiff         Kind = "empty-diff"
)

// String returns the string form of the kind.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// Retryable reports whether failures of this kind are worth one automatic retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindInfraFailure, KindTimeout, KindTestFailures:
		return true
	default:
		return false
	}
}

// Sentinel errors.
var (
	ErrNotFound          = New("not found")
	ErrInvalidInput      = New("invalid input")
	ErrInvalidTransition = New("invalid status transition")
	ErrTimeout           = New("operation timed out")
	ErrNoCredentials     = New("no provider credentials available")
	ErrTeamClosed        = New("team is not active")
)

// -----------------------------------------------------------------------------
// Stage errors
// -----------------------------------------------------------------------------

// StageError is a classified failure with a remediation suggestion.
type StageError struct {
	Kind       Kind
	Stage      string
	Message    string
	Suggestion string
	cause      error
}

// NewStageError creates a StageError for the given stage.
func NewStageError(kind Kind, stage, message string) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: message}
}

// WithSuggestion attaches an actionable suggestion.
func (e *StageError) WithSuggestion(s string) *StageError {
	e.Suggestion = s
	return e
}

// WithCause attaches the underlying error.
func (e *StageError) WithCause(cause error) *StageError {
	e.cause = cause
	return e
}

func (e *StageError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Stage != "" {
		fmt.Fprintf(&sb, " [stage=%s]", e.Stage)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %v", e.cause)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.cause }

// Is matches any *StageError, and ErrTimeout for timeout kinds.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.Kind == KindTimeout && target == ErrTimeout
}

// ProviderError is returned when a model provider answers with a non-2xx status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

// NewProviderError creates a ProviderError. Long bodies are truncated.
func NewProviderError(provider string, status int, body string) *ProviderError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	return &ProviderError{Provider: provider, StatusCode: status, Body: body}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status code indicates a transient failure.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// -----------------------------------------------------------------------------
// Input errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is matches any *NotFoundError and ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return target == ErrNotFound
}

// ValidationError represents invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
}

// Is matches any *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	Resource string
	ID       string
	From     string
	To       string
}

// NewTransitionError creates a TransitionError.
func NewTransitionError(resource, id, from, to string) *TransitionError {
	return &TransitionError{Resource: resource, ID: id, From: from, To: to}
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s '%s': cannot transition from %s to %s", e.Resource, e.ID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	return target == ErrInvalidTransition
}

// -----------------------------------------------------------------------------
// Classification helpers
// -----------------------------------------------------------------------------

// KindOf extracts the failure kind from err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *StageError
	if As(err, &se) {
		return se.Kind
	}
	var pe *ProviderError
	if As(err, &pe) {
		return KindProviderHTTP
	}
	if Is(err, ErrTimeout) {
		return KindTimeout
	}
	if Is(err, ErrNoCredentials) {
		return KindCredentialMissing
	}
	return KindUnknown
}

// IsRetryable returns true if err represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if As(err, &pe) {
		return pe.Retryable()
	}
	return KindOf(err).Retryable()
}

// SuggestionFor returns the attached suggestion, or a generic one for the kind.
func SuggestionFor(err error) string {
	var se *StageError
	if As(err, &se) && se.Suggestion != "" {
		return se.Suggestion
	}
	switch KindOf(err) {
	case KindInfraFailure:
		return "Install project dependencies and verify the toolchain is available, then re-run the checks"
	case KindTimeout:
		return "Reduce the scope of the check or raise its timeout"
	case KindConfigError:
		return "Fix the project's type-check/test configuration"
	case KindNonJSONResponse:
		return "Re-run the review; if it persists switch the review model"
	case KindProviderHTTP:
		return "Verify the provider API key, quota and endpoint, or configure a different review provider"
	case KindCredentialMissing:
		return "Configure provider credentials to enable AI review"
	case KindEmptyDiff:
		return "Commit or stage the task's changes so the gate has a diff to review"
	default:
		return "Inspect the error output and retry"
	}
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
