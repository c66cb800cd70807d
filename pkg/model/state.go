package model

// AnalysisState represents the lifecycle state of an AnalysisSubmission.
type AnalysisState string

const (
	AnalysisStateNew        AnalysisState = "NEW"
	AnalysisStatePreparing  AnalysisState = "PREPARING"
	AnalysisStateSubmitted  AnalysisState = "SUBMITTED"
	AnalysisStateRunning    AnalysisState = "RUNNING"
	AnalysisStateCompleting AnalysisState = "COMPLETING"
	AnalysisStateCompleted  AnalysisState = "COMPLETED"
	AnalysisStateError      AnalysisState = "ERROR"
)

// String returns the string representation of the analysis state.
func (s AnalysisState) String() string {
	return string(s)
}

// IsTerminal returns true if the analysis is in a final state.
func (s AnalysisState) IsTerminal() bool {
	switch s {
	case AnalysisStateCompleted, AnalysisStateError:
		return true
	}
	return false
}

// IsKnown reports whether s is one of the defined analysis states.
func (s AnalysisState) IsKnown() bool {
	_, ok := ValidAnalysisTransitions[s]
	return ok || s.IsTerminal()
}

// ValidAnalysisTransitions defines the allowed state transitions for analyses.
// A state is never revisited once left; RUNNING→RUNNING is handled as a no-op
// re-poll by the coordinator and is not a transition.
var ValidAnalysisTransitions = map[AnalysisState][]AnalysisState{
	AnalysisStateNew:        {AnalysisStatePreparing},
	AnalysisStatePreparing:  {AnalysisStateSubmitted, AnalysisStateError},
	AnalysisStateSubmitted:  {AnalysisStateRunning, AnalysisStateCompleting, AnalysisStateError},
	AnalysisStateRunning:    {AnalysisStateCompleting, AnalysisStateError},
	AnalysisStateCompleting: {AnalysisStateCompleted, AnalysisStateError},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s AnalysisState) CanTransitionTo(next AnalysisState) bool {
	for _, allowed := range ValidAnalysisTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CleanedState tracks removal of the remote resources of a submission. It is
// orthogonal to AnalysisState.
type CleanedState string

const (
	CleanedStateNotCleaned  CleanedState = "NOT_CLEANED"
	CleanedStateCleaning    CleanedState = "CLEANING"
	CleanedStateCleaned     CleanedState = "CLEANED"
	CleanedStateCleanFailed CleanedState = "CLEAN_FAILED"
)

// String returns the string representation of the cleaned state.
func (s CleanedState) String() string {
	return string(s)
}

// IsKnown reports whether s is one of the defined cleaned states.
func (s CleanedState) IsKnown() bool {
	_, ok := ValidCleanedTransitions[s]
	return ok
}

// ValidCleanedTransitions defines the allowed cleanup state transitions.
var ValidCleanedTransitions = map[CleanedState][]CleanedState{
	CleanedStateNotCleaned:  {CleanedStateCleaning},
	CleanedStateCleaning:    {CleanedStateCleaned, CleanedStateCleanFailed},
	CleanedStateCleanFailed: {CleanedStateCleaning},
	CleanedStateCleaned:     {CleanedStateCleaning},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s CleanedState) CanTransitionTo(next CleanedState) bool {
	for _, allowed := range ValidCleanedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanonicalState is the closed set of states a remote workflow resolves to.
type CanonicalState string

const (
	CanonicalRunning   CanonicalState = "RUNNING"
	CanonicalCompleted CanonicalState = "COMPLETED"
	CanonicalError     CanonicalState = "ERROR"
)

// String returns the string representation of the canonical state.
func (s CanonicalState) String() string {
	return string(s)
}

// InputKind classifies a local input reference.
type InputKind string

const (
	InputKindFile      InputKind = "file"
	InputKindReference InputKind = "reference"
	InputKindParameter InputKind = "parameter"
)

// IsUploaded reports whether inputs of this kind are registered remotely as
// datasets (as opposed to being passed as plain workflow parameters).
func (k InputKind) IsUploaded() bool {
	return k == InputKindFile || k == InputKindReference || k == ""
}
