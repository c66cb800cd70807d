package model

import (
	"fmt"
	"time"
)

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Page size bounds for submission listings.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions filters and pages submission listings. Empty filters match
// everything.
type ListOptions struct {
	Limit        int
	Offset       int
	State        AnalysisState
	CleanedState CleanedState
	WorkflowID   string
}

// DefaultListOptions returns the first page with no filters.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultListLimit}
}

// Clamp brings Limit into [1, MaxListLimit] and Offset to at least zero.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Validate rejects state filters that name no known state.
func (o ListOptions) Validate() error {
	var details []FieldError
	if o.State != "" && !o.State.IsKnown() {
		details = append(details, FieldError{Field: "state", Message: fmt.Sprintf("unknown analysis state %q", o.State)})
	}
	if o.CleanedState != "" && !o.CleanedState.IsKnown() {
		details = append(details, FieldError{Field: "cleaned_state", Message: fmt.Sprintf("unknown cleaned state %q", o.CleanedState)})
	}
	if len(details) > 0 {
		return &APIError{Code: ErrValidation, Message: "invalid list filter", Details: details}
	}
	return nil
}
