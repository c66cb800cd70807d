package model

import (
	"encoding/json"
	"time"
)

// WorkflowDefinition describes a pipeline that can be run on the remote
// execution manager.
type WorkflowDefinition struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Type         string          `json:"type" yaml:"type"` // analysis type results are keyed by, e.g. "assembly"
	Version      string          `json:"version,omitempty" yaml:"version"`
	Description  string          `json:"description,omitempty" yaml:"description"`
	Inputs       []WorkflowInput `json:"inputs" yaml:"inputs"`
	OutputLabels []string        `json:"output_labels" yaml:"outputs"`

	// Document is the remote manager's native workflow document, imported
	// verbatim when the analysis is submitted.
	Document json.RawMessage `json:"-" yaml:"-"`
}

// WorkflowInput declares one input role of a workflow definition.
type WorkflowInput struct {
	Role     string    `json:"role" yaml:"role"`
	Label    string    `json:"label" yaml:"label"` // workflow input label on the remote side
	Kind     InputKind `json:"kind,omitempty" yaml:"kind"`
	Required bool      `json:"required" yaml:"required"`
}

// RemoteLabel returns the remote workflow input label for the role.
func (in WorkflowInput) RemoteLabel() string {
	if in.Label != "" {
		return in.Label
	}
	return in.Role
}

// RequiredInputRoles returns the roles a submission must supply.
func (d *WorkflowDefinition) RequiredInputRoles() []string {
	var roles []string
	for _, in := range d.Inputs {
		if in.Required {
			roles = append(roles, in.Role)
		}
	}
	return roles
}

// Input returns the declared input for role.
func (d *WorkflowDefinition) Input(role string) (WorkflowInput, bool) {
	for _, in := range d.Inputs {
		if in.Role == role {
			return in, true
		}
	}
	return WorkflowInput{}, false
}

// PreparedWorkspace is the remote-side staging of a submission's inputs,
// produced once by preparation and consumed once by submission.
type PreparedWorkspace struct {
	SubmissionID string            `json:"submission_id"`
	Name         string            `json:"name"` // name given to the remote containers
	LibraryID    string            `json:"library_id"`
	Datasets     map[string]string `json:"datasets"`   // remote input label -> library dataset id
	Parameters   map[string]any    `json:"parameters"` // remote input label -> literal value
}

// RemoteJobHandle identifies the remote resources created by a submission.
type RemoteJobHandle struct {
	HistoryID    string `json:"history_id"`
	WorkflowID   string `json:"workflow_id"`
	InvocationID string `json:"invocation_id"`
}

// WorkflowStatus is the canonical view of a remote job, recomputed on every
// poll.
type WorkflowStatus struct {
	State        CanonicalState      `json:"state"`
	Proportion   float64             `json:"proportion"`
	RemoteState  string              `json:"remote_state"`
	ItemsByState map[string][]string `json:"items_by_state,omitempty"`
}

// WorkflowOutputReference is a resolved, fetchable workflow output.
type WorkflowOutputReference struct {
	JobID       string `json:"job_id"`
	OutputID    string `json:"output_id"`
	Label       string `json:"label"`
	Name        string `json:"name,omitempty"`
	DownloadURL string `json:"download_url"`
}

// AnalysisResults are the persisted outputs of a completed analysis.
type AnalysisResults struct {
	ID           string                    `json:"id"`
	SubmissionID string                    `json:"submission_id"`
	WorkflowType string                    `json:"workflow_type"`
	Outputs      []WorkflowOutputReference `json:"outputs"`
	CreatedAt    time.Time                 `json:"created_at"`
}
