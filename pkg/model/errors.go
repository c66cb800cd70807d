package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrInvalidState ErrorCode = "INVALID_STATE"
	ErrRemote       ErrorCode = "REMOTE_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the labexec API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ValidationError reports bad or missing submission inputs. It is local and
// not retryable without editing the submission.
type ValidationError struct {
	SubmissionID string
	Message      string
	Details      []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("submission %s: validation failed: %s", e.SubmissionID, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("submission %s: validation failed: %s (%s)", e.SubmissionID, e.Message, strings.Join(parts, "; "))
}

// MissingInputError names a required workflow input role that the submission
// does not supply.
type MissingInputError struct {
	SubmissionID string
	WorkflowID   string
	Role         string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("submission %s: workflow %s requires input %q", e.SubmissionID, e.WorkflowID, e.Role)
}

// SubmissionError reports that the remote manager rejected or failed to
// accept a submission.
type SubmissionError struct {
	SubmissionID string
	Op           string
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s: %s: %v", e.SubmissionID, e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusUnavailableError reports that the remote status of a job could not be
// determined (unknown id, transport failure, timeout).
type StatusUnavailableError struct {
	RemoteID string
	Err      error
}

func (e *StatusUnavailableError) Error() string {
	return fmt.Sprintf("status of remote job %s unavailable: %v", e.RemoteID, e.Err)
}

func (e *StatusUnavailableError) Unwrap() error { return e.Err }

// OutputsUnavailableError reports that outputs could not be fetched, including
// when they are requested before the remote job completed.
type OutputsUnavailableError struct {
	RemoteID string
	Reason   string
	Err      error
}

func (e *OutputsUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("outputs of remote job %s unavailable: %s: %v", e.RemoteID, e.Reason, e.Err)
	}
	return fmt.Sprintf("outputs of remote job %s unavailable: %s", e.RemoteID, e.Reason)
}

func (e *OutputsUnavailableError) Unwrap() error { return e.Err }

// CleanupError reports that one or more remote deletes failed. The submission
// stays CLEANING so cleanup can be re-invoked.
type CleanupError struct {
	SubmissionID string
	Errs         []error
}

func (e *CleanupError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("cleanup of submission %s failed: %s", e.SubmissionID, strings.Join(msgs, "; "))
}

func (e *CleanupError) Unwrap() []error { return e.Errs }

// InvalidStateError reports an operation invoked on a submission whose state
// does not satisfy the operation's precondition. It is never retried.
type InvalidStateError struct {
	SubmissionID string
	Op           string
	State        string
	Want         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("submission %s: cannot %s in state %s (want %s)", e.SubmissionID, e.Op, e.State, e.Want)
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// WriteOnceError is returned when a remote identifier that is already set
// would be overwritten with a different value.
type WriteOnceError struct {
	SubmissionID string
	Field        string
	Current      string
	Attempted    string
}

func (e *WriteOnceError) Error() string {
	return fmt.Sprintf("submission %s: %s already set to %q, refusing %q", e.SubmissionID, e.Field, e.Current, e.Attempted)
}

// ConflictError is returned by the store when a submission was modified
// concurrently since it was read.
type ConflictError struct {
	SubmissionID string
	Version      int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("submission %s: concurrent modification (version %d is stale)", e.SubmissionID, e.Version)
}

// IsValidation reports whether err is a ValidationError or MissingInputError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var me *MissingInputError
	return errors.As(err, &ve) || errors.As(err, &me)
}

// IsRetryable reports whether the caller may retry the failed operation
// without editing the submission.
func IsRetryable(err error) bool {
	var se *SubmissionError
	var su *StatusUnavailableError
	var ou *OutputsUnavailableError
	var ce *CleanupError
	var co *ConflictError
	return errors.As(err, &se) || errors.As(err, &su) || errors.As(err, &ou) ||
		errors.As(err, &ce) || errors.As(err, &co)
}

// ToAPIError maps an error from the core onto the REST error envelope and an
// HTTP-style status class.
func ToAPIError(err error) *APIError {
	var (
		apiErr *APIError
		ise    *InvalidStateError
		ite    *InvalidTransitionError
		co     *ConflictError
		ve     *ValidationError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &ve):
		return &APIError{Code: ErrValidation, Message: ve.Message, Details: ve.Details}
	case IsValidation(err):
		return &APIError{Code: ErrValidation, Message: err.Error()}
	case errors.As(err, &ise), errors.As(err, &ite):
		return &APIError{Code: ErrInvalidState, Message: err.Error()}
	case errors.As(err, &co):
		return &APIError{Code: ErrConflict, Message: err.Error()}
	case IsRetryable(err):
		return &APIError{Code: ErrRemote, Message: err.Error()}
	default:
		return &APIError{Code: ErrInternal, Message: err.Error()}
	}
}
