package galaxy

import "encoding/json"

// History states reported by the server, both for a history as a whole and
// for the datasets it contains.
const (
	StateNew             = "new"
	StateUpload          = "upload"
	StateQueued          = "queued"
	StateRunning         = "running"
	StateSettingMetadata = "setting_metadata"
	StatePaused          = "paused"
	StateOK              = "ok"
	StateEmpty           = "empty"
	StateError           = "error"
	StateFailedMetadata  = "failed_metadata"
	StateDiscarded       = "discarded"
	StateDeferred        = "deferred"
)

// Invocation states.
const (
	InvocationNew       = "new"
	InvocationReady     = "ready"
	InvocationScheduled = "scheduled"
	InvocationFailed    = "failed"
	InvocationCancelled = "cancelled"
)

// History is a container of datasets on the server.
type History struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Purged  bool   `json:"purged,omitempty"`
}

// HistoryDetails is the detailed history view including per-state item ids.
type HistoryDetails struct {
	History

	// StateIDs maps a dataset state to the ids of the datasets in it.
	StateIDs map[string][]string `json:"state_ids"`
}

// HistoryDataset is a dataset inside a history.
type HistoryDataset struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

// Library is a data library.
type Library struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	RootFolderID string `json:"root_folder_id"`
	Deleted      bool   `json:"deleted,omitempty"`
}

// LibraryDataset is a dataset registered in a data library.
type LibraryDataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// StoredWorkflow is an imported workflow.
type StoredWorkflow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted,omitempty"`
}

// InvocationInput points a workflow input at a dataset.
type InvocationInput struct {
	Src string `json:"src"` // "hda" for history datasets, "ld" for library datasets
	ID  string `json:"id"`
}

// InvokeRequest is the body of a workflow invocation.
type InvokeRequest struct {
	HistoryID string         `json:"history_id"`
	Inputs    map[string]any `json:"inputs"`
	InputsBy  string         `json:"inputs_by,omitempty"`
}

// InvocationOutput is one labelled output of an invocation.
type InvocationOutput struct {
	ID  string `json:"id"`
	Src string `json:"src"`
}

// Invocation is one run of a workflow in a history.
type Invocation struct {
	ID         string                      `json:"id"`
	WorkflowID string                      `json:"workflow_id"`
	HistoryID  string                      `json:"history_id"`
	State      string                      `json:"state"`
	Outputs    map[string]InvocationOutput `json:"outputs,omitempty"`
	Steps      []InvocationStep            `json:"steps,omitempty"`
}

// InvocationStep is a scheduled step of an invocation.
type InvocationStep struct {
	ID    string `json:"id"`
	JobID string `json:"job_id,omitempty"`
	Label string `json:"workflow_step_label,omitempty"`
	State string `json:"state,omitempty"`
}

// JobIDForOutput returns the job that produced the labelled output, or the
// job of the last step that ran if no step carries the label.
func (inv *Invocation) JobIDForOutput(label string) string {
	last := ""
	for _, st := range inv.Steps {
		if st.JobID == "" {
			continue
		}
		if st.Label == label {
			return st.JobID
		}
		last = st.JobID
	}
	return last
}

// importRequest is the body used to import a workflow document.
type importRequest struct {
	Workflow json.RawMessage `json:"workflow"`
}

// deleteRequest is the body of purging deletes.
type deleteRequest struct {
	Purge bool `json:"purge"`
}
