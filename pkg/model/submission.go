package model

import "time"

// AnalysisSubmission is a request to run one workflow definition against a
// set of local inputs on the remote execution manager.
type AnalysisSubmission struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	WorkflowID   string           `json:"workflow_id"`
	Inputs       []InputReference `json:"inputs"`
	State        AnalysisState    `json:"state"`
	CleanedState CleanedState     `json:"cleaned_state"`

	// Remote identifiers are written once, when the remote resource is created.
	RemoteAnalysisID   string `json:"remote_analysis_id,omitempty"`
	RemoteInputDataID  string `json:"remote_input_data_id,omitempty"`
	RemoteWorkflowID   string `json:"remote_workflow_id,omitempty"`
	RemoteInvocationID string `json:"remote_invocation_id,omitempty"`

	Progress     float64    `json:"progress"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SubmittedBy  string     `json:"submitted_by,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// InputReference points at one local input of a submission.
type InputReference struct {
	Role     string    `json:"role"`
	Kind     InputKind `json:"kind,omitempty"`
	Location string    `json:"location,omitempty"`
	Value    any       `json:"value,omitempty"`
}

// NewSubmission returns a submission in the NEW state.
func NewSubmission(id, name, workflowID string, inputs []InputReference) *AnalysisSubmission {
	now := time.Now().UTC()
	return &AnalysisSubmission{
		ID:           id,
		Name:         name,
		WorkflowID:   workflowID,
		Inputs:       inputs,
		State:        AnalysisStateNew,
		CleanedState: CleanedStateNotCleaned,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy of the submission.
func (s *AnalysisSubmission) Clone() *AnalysisSubmission {
	c := *s
	if s.Inputs != nil {
		c.Inputs = make([]InputReference, len(s.Inputs))
		copy(c.Inputs, s.Inputs)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Input returns the input for the given role, if any.
func (s *AnalysisSubmission) Input(role string) (InputReference, bool) {
	for _, in := range s.Inputs {
		if in.Role == role {
			return in, true
		}
	}
	return InputReference{}, false
}

// HasRemoteResources reports whether any remote identifier has been written.
func (s *AnalysisSubmission) HasRemoteResources() bool {
	return s.RemoteAnalysisID != "" || s.RemoteInputDataID != "" || s.RemoteWorkflowID != ""
}

// SetRemoteAnalysisID records the remote history id. It is a no-op when the
// same value is already set and fails when a different value is set.
func (s *AnalysisSubmission) SetRemoteAnalysisID(id string) error {
	return setOnce(s.ID, "remote_analysis_id", &s.RemoteAnalysisID, id)
}

// SetRemoteInputDataID records the remote library id.
func (s *AnalysisSubmission) SetRemoteInputDataID(id string) error {
	return setOnce(s.ID, "remote_input_data_id", &s.RemoteInputDataID, id)
}

// SetRemoteWorkflowID records the remote workflow id.
func (s *AnalysisSubmission) SetRemoteWorkflowID(id string) error {
	return setOnce(s.ID, "remote_workflow_id", &s.RemoteWorkflowID, id)
}

// SetRemoteInvocationID records the remote workflow invocation id.
func (s *AnalysisSubmission) SetRemoteInvocationID(id string) error {
	return setOnce(s.ID, "remote_invocation_id", &s.RemoteInvocationID, id)
}

func setOnce(subID, field string, slot *string, value string) error {
	if value == "" {
		return nil
	}
	if *slot == "" {
		*slot = value
		return nil
	}
	if *slot == value {
		return nil
	}
	return &WriteOnceError{SubmissionID: subID, Field: field, Current: *slot, Attempted: value}
}

// TransitionTo moves the submission to next, validating against
// ValidAnalysisTransitions.
func (s *AnalysisSubmission) TransitionTo(next AnalysisState) error {
	if !s.State.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "Submission", ID: s.ID, From: string(s.State), To: string(next)}
	}
	s.State = next
	now := time.Now().UTC()
	s.UpdatedAt = now
	if next.IsTerminal() {
		s.CompletedAt = &now
	}
	return nil
}

// MarkCleaning flags a finished submission for remote cleanup.
func (s *AnalysisSubmission) MarkCleaning() error {
	if !s.State.IsTerminal() {
		return &InvalidStateError{SubmissionID: s.ID, Op: "mark cleaning", State: string(s.State), Want: "COMPLETED or ERROR"}
	}
	if s.CleanedState == CleanedStateCleaning {
		return nil
	}
	if !s.CleanedState.CanTransitionTo(CleanedStateCleaning) {
		return &InvalidTransitionError{Entity: "Submission cleanup", ID: s.ID, From: string(s.CleanedState), To: string(CleanedStateCleaning)}
	}
	s.CleanedState = CleanedStateCleaning
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SubmissionSummary provides an aggregate count of submissions by state.
type SubmissionSummary struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	Preparing  int `json:"preparing"`
	Submitted  int `json:"submitted"`
	Running    int `json:"running"`
	Completing int `json:"completing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
	Cleaning   int `json:"cleaning"`
}

// ComputeSubmissionSummary calculates the SubmissionSummary from submissions.
func ComputeSubmissionSummary(subs []*AnalysisSubmission) SubmissionSummary {
	s := SubmissionSummary{Total: len(subs)}
	for _, sub := range subs {
		switch sub.State {
		case AnalysisStateNew:
			s.New++
		case AnalysisStatePreparing:
			s.Preparing++
		case AnalysisStateSubmitted:
			s.Submitted++
		case AnalysisStateRunning:
			s.Running++
		case AnalysisStateCompleting:
			s.Completing++
		case AnalysisStateCompleted:
			s.Completed++
		case AnalysisStateError:
			s.Error++
		}
		if sub.CleanedState == CleanedStateCleaning {
			s.Cleaning++
		}
	}
	return s
}
